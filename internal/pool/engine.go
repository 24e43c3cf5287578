// Package pool implements the pool lifecycle and the challenge-response
// dispute engine.
//
// A pool is created by a registered operator, finalized under a signature
// bound to the registry epoch, and then serves deposits and withdrawals while
// undisputed. Any party may challenge the executive operator or a watchdog;
// the challenged operator must answer with a signed response before the
// deadline or the pool can be crashed by CheckTimeout.
//
// Every operation on a pool runs under that pool's mutex; operations on
// distinct pools proceed concurrently. The engine never schedules work on its
// own: timeouts are enforced only when some watcher calls CheckTimeout.
package pool

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/teepool/internal/clock"
	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/events"
	"github.com/R3E-Network/teepool/internal/metrics"
	"github.com/R3E-Network/teepool/internal/registry"
	"github.com/R3E-Network/teepool/pkg/logger"
)

// Config configures an Engine.
type Config struct {
	// Required collaborators
	Registry OperatorDirectory
	Verifier SignatureVerifier
	Ledger   Ledger

	// Optional (defaults: system clock, SHA-256, 15s, no-op sinks)
	Clock           Clock
	Hasher          commitment.Hasher
	TimeoutInterval uint64

	// DisableDisputeChain binds response signatures to the registry epoch
	// only, instead of the per-pool dispute chain.
	DisableDisputeChain bool

	Events  events.EventLogger
	Metrics metrics.Recorder
	Logger  *logger.Logger
}

// Engine owns the pool records.
type Engine struct {
	mu    sync.RWMutex
	pools map[PoolID]*record

	registry OperatorDirectory
	verifier SignatureVerifier
	ledger   Ledger
	clock    Clock
	hasher   commitment.Hasher
	timeout  uint64
	chain    bool

	events  events.EventLogger
	metrics metrics.Recorder
	log     *logger.Logger
}

type record struct {
	mu  sync.Mutex
	c   Contract
	seq uint64
}

// New creates an engine with no pools.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("operator registry is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Hasher == nil {
		cfg.Hasher = commitment.Default
	}
	if cfg.TimeoutInterval == 0 {
		cfg.TimeoutInterval = DefaultTimeoutInterval
	}
	if cfg.TimeoutInterval > MaxTimeoutInterval {
		return nil, fmt.Errorf("timeout interval %d exceeds %d", cfg.TimeoutInterval, MaxTimeoutInterval)
	}
	if cfg.Events == nil {
		cfg.Events = events.NoOpLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOpCollector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("pool")
	}

	return &Engine{
		pools:    make(map[PoolID]*record),
		registry: cfg.Registry,
		verifier: cfg.Verifier,
		ledger:   cfg.Ledger,
		clock:    cfg.Clock,
		hasher:   cfg.Hasher,
		timeout:  cfg.TimeoutInterval,
		chain:    !cfg.DisableDisputeChain,
		events:   cfg.Events,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
	}, nil
}

// TimeoutInterval returns the response window length in seconds.
func (e *Engine) TimeoutInterval() uint64 {
	return e.timeout
}

// Hasher returns the hash primitive signers must use for digests.
func (e *Engine) Hasher() commitment.Hasher {
	return e.hasher
}

// Get returns a copy of the pool record.
func (e *Engine) Get(id PoolID) (Contract, error) {
	rec, ok := e.lookup(id)
	if !ok {
		return Contract{}, &Error{Op: "get", ID: id, Kind: ErrPoolNotFound}
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.c, nil
}

// Pools returns every pool id in ascending order.
func (e *Engine) Pools() []PoolID {
	e.mu.RLock()
	ids := make([]PoolID, 0, len(e.pools))
	for id := range e.pools {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}

// Expired returns the ids of pools whose pending deadline has passed.
func (e *Engine) Expired() []PoolID {
	now := e.clock.Now()
	var out []PoolID
	for _, id := range e.Pools() {
		rec, _ := e.lookup(id)
		rec.mu.Lock()
		expired := rec.c.Expired(now)
		rec.mu.Unlock()
		if expired {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) lookup(id PoolID) (*record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.pools[id]
	return rec, ok
}

// txn holds a pool's lock for the duration of one operation. Events are
// published after the lock is released so subscribers may call back into the
// engine.
type txn struct {
	e       *Engine
	ctx     context.Context
	op      string
	rec     *record
	c       *Contract
	now     uint64
	pending []events.Event
}

func (e *Engine) begin(ctx context.Context, op string, id PoolID) (*txn, error) {
	rec, ok := e.lookup(id)
	if !ok {
		return nil, e.reject(op, id, ErrPoolNotFound, nil)
	}
	rec.mu.Lock()
	return &txn{e: e, ctx: ctx, op: op, rec: rec, c: &rec.c, now: e.clock.Now()}, nil
}

func (t *txn) end() {
	t.rec.mu.Unlock()
	for _, ev := range t.pending {
		t.e.events.LogWithContext(t.ctx, ev)
	}
}

func (t *txn) reject(kind, cause error) error {
	return t.e.reject(t.op, t.c.ID, kind, cause)
}

func (t *txn) requirePhase(want ...Phase) error {
	for _, p := range want {
		if t.c.Phase == p {
			return nil
		}
	}
	return t.reject(ErrWrongPhase, fmt.Errorf("phase is %s, want %v", t.c.Phase, want))
}

// deadlineAfter returns now+window, saturating instead of wrapping.
func (t *txn) deadlineAfter(window uint64) uint64 {
	if window > math.MaxUint64-t.now {
		return math.MaxUint64
	}
	return t.now + window
}

func (t *txn) requireOpenDeadline() error {
	if t.now > t.c.Deadline {
		return t.reject(ErrDeadlineExpired, fmt.Errorf("now %d past deadline %d", t.now, t.c.Deadline))
	}
	return nil
}

// commit records an accepted operation that moved the pool from -> c.Phase.
func (t *txn) commit(from Phase, ev *events.EventBuilder) {
	to := t.c.Phase
	if !CanTransition(from, to) {
		panic(invariant(t.c.ID, "%s moved pool %s -> %s", t.op, from, to))
	}
	t.c.UpdatedAt = t.now

	fromLabel := from.String()
	if from == PhaseNone {
		fromLabel = ""
	}
	t.e.metrics.RecordTransition(t.op, fromLabel, to.String())

	entry := t.e.log.WithFields(logrus.Fields{
		"op":      t.op,
		"pool_id": t.c.ID.String(),
		"from":    from.String(),
		"phase":   to.String(),
	})
	if to == PhaseCrashed {
		entry.Warn("pool crashed")
	} else {
		entry.Info("pool " + t.op)
	}

	t.rec.seq++
	t.pending = append(t.pending, ev.
		Pool(t.c.ID.String()).
		Sequence(t.rec.seq).
		Transition(from.String(), to.String()).
		At(t.now).
		Build())
}

func (e *Engine) reject(op string, id PoolID, kind, cause error) error {
	e.metrics.RecordRejection(op, kind.Error())
	err := &Error{Op: op, ID: id, Kind: kind, Err: cause}
	e.log.WithField("op", op).
		WithField("pool_id", id.String()).
		WithError(err).
		Debug("pool operation rejected")
	return err
}

// signer resolves the TEE signature address of a registered operator.
func (t *txn) signer(address string) (string, error) {
	op, err := t.e.registry.Resolve(address)
	if err != nil {
		return "", t.reject(registry.ErrUnknownOperator, err)
	}
	return op.TEESignatureAddress, nil
}

// verify checks sig over digest for the registered operator at address.
func (t *txn) verify(digest commitment.Hash, sig []byte, address string) error {
	signer, err := t.signer(address)
	if err != nil {
		return err
	}
	ok, err := t.e.verifier.VerifySignature(t.ctx, digest, sig, signer)
	if err != nil {
		return t.reject(ErrInvalidSignature, fmt.Errorf("verify signature: %w", err))
	}
	if !ok {
		return t.reject(ErrInvalidSignature, fmt.Errorf("signer %s", address))
	}
	return nil
}
