// Package testutil provides test doubles for the registry, the pool engine
// and the sweeper.
package testutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/metrics"
)

// MockAttestation is a registry.AttestationVerifier that accepts every
// attestation except those for rejected signature addresses.
type MockAttestation struct {
	mu     sync.RWMutex
	reject map[string]bool
	err    error
	calls  int
}

// NewMockAttestation creates a verifier rejecting the given signature
// addresses.
func NewMockAttestation(rejected ...string) *MockAttestation {
	m := &MockAttestation{reject: make(map[string]bool)}
	for _, addr := range rejected {
		m.reject[addr] = true
	}
	return m
}

// FailWith makes every later call return err.
func (m *MockAttestation) FailWith(err error) *MockAttestation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// VerifyAttestation implements registry.AttestationVerifier.
func (m *MockAttestation) VerifyAttestation(_ context.Context, teeSignatureAddress string, _, _ []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return !m.reject[teeSignatureAddress], nil
}

// Calls returns how many attestations were checked.
func (m *MockAttestation) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// FakeSign produces the signature MockSignatures accepts: H(signer || digest).
func FakeSign(signer string, digest commitment.Hash) []byte {
	sum := sha256.Sum256(append([]byte(signer), digest[:]...))
	return sum[:]
}

// MockSignatures is a pool.SignatureVerifier over FakeSign signatures. A
// non-nil Err is returned from every call.
type MockSignatures struct {
	Err error
}

// VerifySignature implements pool.SignatureVerifier.
func (m MockSignatures) VerifySignature(_ context.Context, digest commitment.Hash, signature []byte, signer string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return bytes.Equal(signature, FakeSign(signer, digest)), nil
}

// MetricsRecorder is a metrics.Recorder that keeps every observation.
type MetricsRecorder struct {
	mu            sync.Mutex
	registrations int
	transitions   []string
	rejections    map[string]int
	crashes       []string
	sweeps        int
	sweptCrashed  int
	sweepFailures int
}

var _ metrics.Recorder = (*MetricsRecorder)(nil)

func (r *MetricsRecorder) RecordRegistration(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations++
}

// RecordTransition stores "op:from>to".
func (r *MetricsRecorder) RecordTransition(op, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, op+":"+from+">"+to)
}

// RecordRejection counts "op:reason".
func (r *MetricsRecorder) RecordRejection(op, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rejections == nil {
		r.rejections = make(map[string]int)
	}
	r.rejections[op+":"+reason]++
}

func (r *MetricsRecorder) RecordCrash(from string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashes = append(r.crashes, from)
}

func (r *MetricsRecorder) RecordSweep(_ time.Duration, crashed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	r.sweptCrashed += crashed
	r.sweepFailures += failed
}

func (r *MetricsRecorder) Registrations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registrations
}

func (r *MetricsRecorder) Transitions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transitions...)
}

// Rejections returns the count recorded for op and reason.
func (r *MetricsRecorder) Rejections(op, reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejections[op+":"+reason]
}

func (r *MetricsRecorder) Crashes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.crashes...)
}

// Sweeps returns the number of sweeps and their crashed and failed totals.
func (r *MetricsRecorder) Sweeps() (runs, crashed, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps, r.sweptCrashed, r.sweepFailures
}
