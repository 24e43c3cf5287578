// Package registry admits TEE-backed operators and maintains the ordered
// commitment chain over the registered set.
//
// The chain starts at 32 zero bytes and folds every successful registration
// in order: h_n = H(h_{n-1} || address_n). Pools snapshot the current value
// (the epoch) when they are created and every signature they later accept is
// bound to it.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/R3E-Network/teepool/internal/clock"
	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/events"
	"github.com/R3E-Network/teepool/internal/metrics"
	"github.com/R3E-Network/teepool/pkg/logger"
)

// AttestationVerifier checks that an operator's keys were produced inside an
// attested TEE.
type AttestationVerifier interface {
	VerifyAttestation(ctx context.Context, teeSignatureAddress string, teeEncryptionKey, attestationSignature []byte) (bool, error)
}

// Clock supplies registration timestamps.
type Clock interface {
	Now() uint64
}

// Operator is an admitted operator. Immutable once registered.
type Operator struct {
	Address             string `json:"address"`
	Initialized         bool   `json:"initialized"`
	TEESignatureAddress string `json:"tee_signature_address"`
	TEEEncryptionKey    []byte `json:"tee_encryption_key"`
	Index               int    `json:"index"`
	RegisteredAt        uint64 `json:"registered_at"`
}

func (o Operator) clone() Operator {
	o.TEEEncryptionKey = append([]byte(nil), o.TEEEncryptionKey...)
	return o
}

// Config configures a Registry.
type Config struct {
	Verifier AttestationVerifier // required
	Hasher   commitment.Hasher
	Clock    Clock
	Events   events.EventLogger
	Metrics  metrics.Recorder
	Logger   *logger.Logger
}

// Registry is the append-only operator set.
type Registry struct {
	mu        sync.RWMutex
	operators map[string]Operator
	order     []string
	epoch     commitment.Hash

	verifier AttestationVerifier
	hasher   commitment.Hasher
	clock    Clock
	events   events.EventLogger
	metrics  metrics.Recorder
	log      *logger.Logger
}

// New creates an empty registry at epoch zero.
func New(cfg Config) (*Registry, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("attestation verifier is required")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = commitment.Default
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Events == nil {
		cfg.Events = events.NoOpLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOpCollector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("registry")
	}

	return &Registry{
		operators: make(map[string]Operator),
		epoch:     commitment.Zero,
		verifier:  cfg.Verifier,
		hasher:    cfg.Hasher,
		clock:     cfg.Clock,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}, nil
}

// Register admits an operator after its attestation verifies and returns the
// new epoch. Attestation runs outside the lock; the duplicate check is
// repeated under the write lock so concurrent registrations of the same
// address cannot both succeed.
func (r *Registry) Register(ctx context.Context, address, teeSignatureAddress string, teeEncryptionKey, attestationSignature []byte) (commitment.Hash, error) {
	epoch, err := r.register(ctx, address, teeSignatureAddress, teeEncryptionKey, attestationSignature)
	r.metrics.RecordRegistration(err)
	if err != nil {
		r.log.WithField("operator", address).WithError(err).Debug("registration rejected")
	}
	return epoch, err
}

func (r *Registry) register(ctx context.Context, address, teeSignatureAddress string, teeEncryptionKey, attestationSignature []byte) (commitment.Hash, error) {
	address = NormalizeAddress(address)
	teeSignatureAddress = NormalizeAddress(teeSignatureAddress)
	if address == "" {
		return commitment.Hash{}, fmt.Errorf("%w: address is required", ErrInvalidOperator)
	}
	if teeSignatureAddress == "" {
		return commitment.Hash{}, fmt.Errorf("%w: tee signature address is required", ErrInvalidOperator)
	}

	if r.Contains(address) {
		return commitment.Hash{}, fmt.Errorf("register %s: %w", address, ErrAlreadyRegistered)
	}

	ok, err := r.verifier.VerifyAttestation(ctx, teeSignatureAddress, teeEncryptionKey, attestationSignature)
	if err != nil {
		return commitment.Hash{}, fmt.Errorf("verify attestation: %w", err)
	}
	if !ok {
		return commitment.Hash{}, fmt.Errorf("register %s: %w", address, ErrAttestationInvalid)
	}

	r.mu.Lock()
	if _, exists := r.operators[address]; exists {
		r.mu.Unlock()
		return commitment.Hash{}, fmt.Errorf("register %s: %w", address, ErrAlreadyRegistered)
	}

	op := Operator{
		Address:             address,
		Initialized:         true,
		TEESignatureAddress: teeSignatureAddress,
		TEEEncryptionKey:    append([]byte(nil), teeEncryptionKey...),
		Index:               len(r.order),
		RegisteredAt:        r.clock.Now(),
	}
	r.operators[address] = op
	r.order = append(r.order, address)
	r.epoch = commitment.Fold(r.hasher, r.epoch, address)
	epoch := r.epoch
	r.mu.Unlock()

	r.log.WithField("operator", address).
		WithField("index", op.Index).
		WithField("epoch", epoch.String()).
		Info("operator registered")

	r.events.LogWithContext(ctx, events.NewEvent(events.EventOperatorRegistered).
		Operator(address).
		At(op.RegisteredAt).
		Metadata("epoch", epoch.String()).
		Build())

	return epoch, nil
}

// Resolve returns the operator registered under address.
func (r *Registry) Resolve(address string) (Operator, error) {
	address = NormalizeAddress(address)
	r.mu.RLock()
	op, ok := r.operators[address]
	r.mu.RUnlock()

	if !ok {
		return Operator{}, fmt.Errorf("resolve %q: %w", address, ErrUnknownOperator)
	}
	return op.clone(), nil
}

// NormalizeAddress strips surrounding whitespace. Every entry point that
// accepts an address applies it, so " A" and "A" name the same operator.
func NormalizeAddress(address string) string {
	return strings.TrimSpace(address)
}

// Contains reports whether address is registered.
func (r *Registry) Contains(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.operators[NormalizeAddress(address)]
	return ok
}

// CurrentEpoch returns the chain value covering every registration so far.
func (r *Registry) CurrentEpoch() commitment.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// Len returns the number of registered operators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Operators returns all operators in registration order.
func (r *Registry) Operators() []Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Operator, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.operators[addr].clone())
	}
	return out
}
