// Package events records pool and registry notifications. Every accepted
// state transition produces one Event. Subscribers receive events in the
// order they are logged; events of one pool may be logged out of transition
// order under concurrent callers, so consumers that need it sort by Sequence.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a notification.
type EventType string

const (
	// Registry events
	EventOperatorRegistered EventType = "operator.registered"

	// Pool lifecycle events
	EventCreationStarted EventType = "pool.creation_started"
	EventPoolCreated     EventType = "pool.created"
	EventDeposit         EventType = "pool.deposit"
	EventWithdrawal      EventType = "pool.withdrawal"

	// Dispute events
	EventExecutorChallenged EventType = "dispute.executor_challenged"
	EventExecutorResponded  EventType = "dispute.executor_responded"
	EventWatchdogChallenged EventType = "dispute.watchdog_challenged"
	EventWatchdogResponded  EventType = "dispute.watchdog_responded"
	EventPoolCrashed        EventType = "dispute.pool_crashed"
)

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a structured notification.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	// At is the protocol clock reading when the transition happened.
	At uint64 `json:"at,omitempty"`
	// Sequence numbers the transitions of one pool from 1.
	Sequence uint64 `json:"sequence,omitempty"`

	PoolID   string `json:"pool_id,omitempty"`
	Operator string `json:"operator,omitempty"`
	From     string `json:"from,omitempty"`
	Phase    string `json:"phase,omitempty"`

	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// String returns the JSON encoding.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// EventHandler processes events as they occur.
type EventHandler func(Event)

// EventFilter decides whether an event should be processed.
type EventFilter func(Event) bool

// EventLogger is the sink the registry and engine publish to.
type EventLogger interface {
	Log(event Event)
	LogWithContext(ctx context.Context, event Event)
	Subscribe(handler EventHandler) func()
	SubscribeFiltered(filter EventFilter, handler EventHandler) func()
	Recent(n int) []Event
	RecentByPool(poolID string, n int) []Event
	RecentByType(eventType EventType, n int) []Event
}

// RingBuffer is a thread-safe circular buffer of events.
type RingBuffer struct {
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  EventFilter
	handler EventHandler
}

// NewRingBuffer creates a buffer holding the last size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

// Log stores the event and notifies handlers outside the lock.
func (rb *RingBuffer) Log(event Event) {
	rb.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}

	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// LogWithContext copies trace identifiers from ctx before logging.
func (rb *RingBuffer) LogWithContext(ctx context.Context, event Event) {
	if s, ok := ctx.Value(traceIDKey).(string); ok {
		event.TraceID = s
	}
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		event.RequestID = s
	}
	rb.Log(event)
}

// Subscribe registers a handler for all events and returns its cancel func.
func (rb *RingBuffer) Subscribe(handler EventHandler) func() {
	return rb.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler with a filter.
func (rb *RingBuffer) SubscribeFiltered(filter EventFilter, handler EventHandler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{
		id:      id,
		filter:  filter,
		handler: handler,
	})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n events, newest first.
func (rb *RingBuffer) Recent(n int) []Event {
	return rb.collect(n, nil)
}

// RecentByPool returns up to n events for one pool, newest first.
func (rb *RingBuffer) RecentByPool(poolID string, n int) []Event {
	return rb.collect(n, func(e Event) bool { return e.PoolID == poolID })
}

// RecentByType returns up to n events of one type, newest first.
func (rb *RingBuffer) RecentByType(eventType EventType, n int) []Event {
	return rb.collect(n, func(e Event) bool { return e.Type == eventType })
}

func (rb *RingBuffer) collect(n int, match EventFilter) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		idx := (rb.head - 1 - i + rb.size) % rb.size
		if match == nil || match(rb.events[idx]) {
			result = append(result, rb.events[idx])
		}
	}
	return result
}

// Count returns the number of buffered events.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear drops all buffered events. Subscriptions are kept.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.events = make([]Event, rb.size)
	rb.head = 0
	rb.count = 0
}

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	requestIDKey contextKey = "request_id"
)

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// EventBuilder provides a fluent API for creating events.
type EventBuilder struct {
	event Event
}

// NewEvent starts an info-level event of the given type.
func NewEvent(eventType EventType) *EventBuilder {
	return &EventBuilder{
		event: Event{
			Type:      eventType,
			Severity:  SeverityInfo,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (b *EventBuilder) Pool(id string) *EventBuilder {
	b.event.PoolID = id
	return b
}

func (b *EventBuilder) Operator(address string) *EventBuilder {
	b.event.Operator = address
	return b
}

// Transition records the phase change from -> to.
func (b *EventBuilder) Transition(from, to string) *EventBuilder {
	b.event.From = from
	b.event.Phase = to
	return b
}

func (b *EventBuilder) At(now uint64) *EventBuilder {
	b.event.At = now
	return b
}

func (b *EventBuilder) Sequence(n uint64) *EventBuilder {
	b.event.Sequence = n
	return b
}

func (b *EventBuilder) Severity(severity Severity) *EventBuilder {
	b.event.Severity = severity
	return b
}

func (b *EventBuilder) Message(msg string) *EventBuilder {
	b.event.Message = msg
	return b
}

// Metadata adds a key/value pair.
func (b *EventBuilder) Metadata(key, value string) *EventBuilder {
	if b.event.Metadata == nil {
		b.event.Metadata = make(map[string]string)
	}
	b.event.Metadata[key] = value
	return b
}

// Build returns the event with an ID assigned.
func (b *EventBuilder) Build() Event {
	if b.event.ID == "" {
		b.event.ID = uuid.NewString()
	}
	return b.event
}

// NoOpLogger discards all events.
type NoOpLogger struct{}

func (NoOpLogger) Log(Event)                                          {}
func (NoOpLogger) LogWithContext(context.Context, Event)              {}
func (NoOpLogger) Subscribe(EventHandler) func()                      { return func() {} }
func (NoOpLogger) SubscribeFiltered(EventFilter, EventHandler) func() { return func() {} }
func (NoOpLogger) Recent(int) []Event                                 { return nil }
func (NoOpLogger) RecentByPool(string, int) []Event                   { return nil }
func (NoOpLogger) RecentByType(EventType, int) []Event                { return nil }
