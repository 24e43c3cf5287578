package pool

import (
	"context"
	"fmt"
	"strconv"

	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/events"
	"github.com/R3E-Network/teepool/internal/registry"
)

// InitCreation reserves id for a new pool created by creationOperator and
// snapshots the registry epoch. The creation attestation must arrive within
// one timeout interval.
func (e *Engine) InitCreation(ctx context.Context, id PoolID, creationOperator string, codeHash commitment.Hash) (Phase, error) {
	const op = "init_creation"

	creationOperator = registry.NormalizeAddress(creationOperator)
	if creationOperator == "" {
		return PhaseNone, e.reject(op, id, ErrInvalidArgument, fmt.Errorf("creation operator is required"))
	}
	if _, err := e.registry.Resolve(creationOperator); err != nil {
		return PhaseNone, e.reject(op, id, registry.ErrUnknownOperator, err)
	}

	e.mu.Lock()
	if _, exists := e.pools[id]; exists {
		e.mu.Unlock()
		return PhaseNone, e.reject(op, id, ErrPoolExists, nil)
	}

	rec := &record{}
	rec.mu.Lock()
	e.pools[id] = rec
	e.mu.Unlock()

	// The record is published locked, so nobody observes it half-built.
	t := &txn{e: e, ctx: ctx, op: op, rec: rec, c: &rec.c, now: e.clock.Now()}
	defer t.end()

	epoch := e.registry.CurrentEpoch()
	*t.c = Contract{
		ID:                id,
		Phase:             PhaseCreation,
		IncrementalTxHash: epoch,
		CreationOperator:  creationOperator,
		ExecutiveOperator: 0,
		CodeHash:          codeHash,
		FallbackPhase:     PhaseNone,
		ChallengedSlot:    NoSlot,
		DisputeHash:       epoch,
		Deadline:          t.deadlineAfter(e.timeout),
		CreatedAt:         t.now,
	}

	t.commit(PhaseNone, events.NewEvent(events.EventCreationStarted).
		Operator(creationOperator).
		Metadata("epoch", epoch.String()).
		Metadata("code_hash", codeHash.String()).
		Metadata("deadline", strconv.FormatUint(t.c.Deadline, 10)))

	return t.c.Phase, nil
}

// FinalizeCreation binds the pool to poolAddress and its operator slots once
// the creation operator's signature over CreationDigest verifies. Slot 0
// becomes the executive.
func (e *Engine) FinalizeCreation(ctx context.Context, id PoolID, poolAddress string, operators [PoolSize]string, signature []byte) (Phase, error) {
	t, err := e.begin(ctx, "finalize_creation", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseCreation); err != nil {
		return t.c.Phase, err
	}
	if err := t.requireOpenDeadline(); err != nil {
		return t.c.Phase, err
	}

	poolAddress = registry.NormalizeAddress(poolAddress)
	if poolAddress == "" {
		return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("pool address is required"))
	}
	seen := make(map[string]bool, PoolSize)
	for i := range operators {
		operators[i] = registry.NormalizeAddress(operators[i])
		addr := operators[i]
		if addr == "" {
			return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("operator slot %d is empty", i))
		}
		if seen[addr] {
			return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("operator %s assigned twice", addr))
		}
		seen[addr] = true
		if _, err := t.signer(addr); err != nil {
			return t.c.Phase, err
		}
	}

	digest := CreationDigest(e.hasher, id, t.c.IncrementalTxHash, poolAddress, t.c.CodeHash, operators)
	if err := t.verify(digest, signature, t.c.CreationOperator); err != nil {
		return t.c.Phase, err
	}

	t.c.PoolAddress = poolAddress
	t.c.Operators = operators
	t.c.ExecutiveOperator = 0
	t.c.Phase = PhaseExecuting
	t.c.Deadline = 0

	t.commit(PhaseCreation, events.NewEvent(events.EventPoolCreated).
		Operator(t.c.Executive()).
		Metadata("pool_address", poolAddress).
		Message(fmt.Sprintf("pool %s created", id)))

	return t.c.Phase, nil
}

// Deposit forwards amount from the depositor to the pool address.
func (e *Engine) Deposit(ctx context.Context, id PoolID, from string, amount uint64) (Phase, error) {
	t, err := e.begin(ctx, "deposit", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseExecuting); err != nil {
		return t.c.Phase, err
	}
	from = registry.NormalizeAddress(from)
	if from == "" {
		return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("depositor is required"))
	}
	if amount == 0 {
		return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("amount must be positive"))
	}

	if err := e.ledger.Transfer(ctx, from, t.c.PoolAddress, amount); err != nil {
		return t.c.Phase, t.reject(ErrLedger, err)
	}

	t.commit(PhaseExecuting, events.NewEvent(events.EventDeposit).
		Metadata("from", from).
		Metadata("amount", strconv.FormatUint(amount, 10)))

	return t.c.Phase, nil
}

// Withdraw forwards amount from the pool to receiver. Only a caller
// presenting the pool's own address may withdraw; authenticating that caller
// is the transport's job.
func (e *Engine) Withdraw(ctx context.Context, id PoolID, caller, receiver string, amount uint64) (Phase, error) {
	t, err := e.begin(ctx, "withdraw", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseExecuting); err != nil {
		return t.c.Phase, err
	}
	caller = registry.NormalizeAddress(caller)
	receiver = registry.NormalizeAddress(receiver)
	if caller != t.c.PoolAddress {
		return t.c.Phase, t.reject(ErrUnauthorizedCaller, fmt.Errorf("caller %q is not the pool address", caller))
	}
	if receiver == "" {
		return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("receiver is required"))
	}
	if amount == 0 {
		return t.c.Phase, t.reject(ErrInvalidArgument, fmt.Errorf("amount must be positive"))
	}

	if err := e.ledger.Transfer(ctx, t.c.PoolAddress, receiver, amount); err != nil {
		return t.c.Phase, t.reject(ErrLedger, err)
	}

	t.commit(PhaseExecuting, events.NewEvent(events.EventWithdrawal).
		Metadata("receiver", receiver).
		Metadata("amount", strconv.FormatUint(amount, 10)))

	return t.c.Phase, nil
}
