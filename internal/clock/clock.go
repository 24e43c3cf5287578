// Package clock provides the time sources consumed by the pool engine.
// Timestamps are unsigned Unix seconds.
package clock

import (
	"sync"
	"time"
)

// System reads the wall clock.
type System struct{}

// Now returns the current Unix time in seconds.
func (System) Now() uint64 {
	return uint64(time.Now().Unix())
}

// Manual is a clock advanced explicitly. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual creates a manual clock reading start.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading.
func (m *Manual) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d seconds and returns the new reading.
func (m *Manual) Advance(d uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}

// Set moves the clock to t. Moving backwards is ignored so readings stay
// monotonically non-decreasing.
func (m *Manual) Set(t uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.now {
		m.now = t
	}
}
