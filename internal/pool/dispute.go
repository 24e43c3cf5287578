package pool

import (
	"context"
	"fmt"
	"strconv"

	"github.com/R3E-Network/teepool/internal/commitment"
	"github.com/R3E-Network/teepool/internal/events"
)

// ChallengeExecutor opens an executor dispute. The executive operator must
// answer with ExecutorResponse within one timeout interval.
func (e *Engine) ChallengeExecutor(ctx context.Context, id PoolID, message []byte) (Phase, error) {
	t, err := e.begin(ctx, "challenge_executor", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseExecuting); err != nil {
		return t.c.Phase, err
	}

	t.c.ExecChallengeHash = commitment.Message(e.hasher, message)
	t.openRound(t.c.ExecChallengeHash)
	t.c.WatchdogsChallenged = 0
	t.c.Deadline = t.deadlineAfter(e.timeout)
	t.c.Phase = PhaseChallengeExecutor

	t.commit(PhaseExecuting, events.NewEvent(events.EventExecutorChallenged).
		Operator(t.c.Executive()).
		Metadata("challenge_hash", t.c.ExecChallengeHash.String()).
		Metadata("round", strconv.FormatUint(t.c.Round, 10)).
		Metadata("deadline", strconv.FormatUint(t.c.Deadline, 10)))

	return t.c.Phase, nil
}

// ExecutorResponse closes an executor dispute with the executive operator's
// signature over ExecutorResponseDigest for the pool's current dispute hash.
func (e *Engine) ExecutorResponse(ctx context.Context, id PoolID, response, signature []byte) (Phase, error) {
	t, err := e.begin(ctx, "executor_response", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseChallengeExecutor); err != nil {
		return t.c.Phase, err
	}
	if err := t.requireOpenDeadline(); err != nil {
		return t.c.Phase, err
	}

	executive := t.c.Executive()
	digest := ExecutorResponseDigest(e.hasher, id, t.c.DisputeHash, response)
	if err := t.verify(digest, signature, executive); err != nil {
		return t.c.Phase, err
	}

	t.c.ExecChallengeHash = commitment.Zero
	t.c.Deadline = 0
	t.c.Phase = PhaseExecuting

	t.commit(PhaseChallengeExecutor, events.NewEvent(events.EventExecutorResponded).
		Operator(executive).
		Metadata("round", strconv.FormatUint(t.c.Round, 10)))

	return t.c.Phase, nil
}

// ChallengeWatchdog opens a dispute against the watchdog in slot. It may
// interrupt an executor dispute, whose remaining response time is suspended
// until the watchdog round resolves. Only one watchdog may be challenged per
// executor round.
func (e *Engine) ChallengeWatchdog(ctx context.Context, id PoolID, slot int, message []byte) (Phase, error) {
	t, err := e.begin(ctx, "challenge_watchdog", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseExecuting, PhaseChallengeExecutor); err != nil {
		return t.c.Phase, err
	}
	if slot < 0 || slot >= PoolSize {
		return t.c.Phase, t.reject(ErrInvalidSlot, fmt.Errorf("slot %d out of range", slot))
	}
	if slot == t.c.ExecutiveOperator {
		return t.c.Phase, t.reject(ErrInvalidSlot, fmt.Errorf("slot %d is the executive", slot))
	}

	from := t.c.Phase
	if from == PhaseChallengeExecutor {
		if err := t.requireOpenDeadline(); err != nil {
			return t.c.Phase, err
		}
		if t.c.WatchdogsChallenged > 0 {
			return t.c.Phase, t.reject(ErrChallengeLimit, fmt.Errorf("%d watchdog challenge(s) already opened this round", t.c.WatchdogsChallenged))
		}
		t.c.FallbackRemaining = t.c.Deadline - t.now
	} else {
		t.c.FallbackRemaining = 0
	}

	t.c.FallbackPhase = from
	t.c.WatchdogChallengeHash = commitment.Message(e.hasher, message)
	t.c.ChallengedSlot = slot
	t.c.ChallengedWatchdogs[slot] = saturatingInc(t.c.ChallengedWatchdogs[slot])
	t.c.WatchdogsChallenged = saturatingInc(t.c.WatchdogsChallenged)
	t.openRound(t.c.WatchdogChallengeHash)
	t.c.Deadline = t.deadlineAfter(e.timeout)
	t.c.Phase = PhaseChallengeWatchdog

	t.commit(from, events.NewEvent(events.EventWatchdogChallenged).
		Operator(t.c.Operators[slot]).
		Metadata("slot", strconv.Itoa(slot)).
		Metadata("challenge_hash", t.c.WatchdogChallengeHash.String()).
		Metadata("round", strconv.FormatUint(t.c.Round, 10)).
		Metadata("deadline", strconv.FormatUint(t.c.Deadline, 10)))

	return t.c.Phase, nil
}

// WatchdogResponse closes a watchdog dispute and restores the phase the
// challenge interrupted. A restored executor dispute resumes with the
// response time it had left.
func (e *Engine) WatchdogResponse(ctx context.Context, id PoolID, slot int, response, signature []byte) (Phase, error) {
	t, err := e.begin(ctx, "watchdog_response", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseChallengeWatchdog); err != nil {
		return t.c.Phase, err
	}
	if err := t.requireOpenDeadline(); err != nil {
		return t.c.Phase, err
	}
	if slot != t.c.ChallengedSlot {
		return t.c.Phase, t.reject(ErrInvalidSlot, fmt.Errorf("slot %d is not under challenge (challenged slot %d)", slot, t.c.ChallengedSlot))
	}

	watchdog := t.c.Operators[slot]
	digest := WatchdogResponseDigest(e.hasher, id, t.c.DisputeHash, slot, response)
	if err := t.verify(digest, signature, watchdog); err != nil {
		return t.c.Phase, err
	}

	restore := t.c.FallbackPhase
	switch restore {
	case PhaseExecuting:
		t.c.Deadline = 0
	case PhaseChallengeExecutor:
		t.c.Deadline = t.deadlineAfter(t.c.FallbackRemaining)
	default:
		panic(invariant(id, "watchdog dispute with fallback phase %s", restore))
	}

	t.c.Phase = restore
	t.c.FallbackPhase = PhaseNone
	t.c.FallbackRemaining = 0
	t.c.WatchdogChallengeHash = commitment.Zero
	t.c.ChallengedSlot = NoSlot

	t.commit(PhaseChallengeWatchdog, events.NewEvent(events.EventWatchdogResponded).
		Operator(watchdog).
		Metadata("slot", strconv.Itoa(slot)).
		Metadata("round", strconv.FormatUint(t.c.Round, 10)))

	return t.c.Phase, nil
}

// openRound advances the dispute counter and, with chaining on, folds the
// new challenge into the pool's dispute hash.
func (t *txn) openRound(challenge commitment.Hash) {
	t.c.Round++
	if t.e.chain {
		t.c.DisputeHash = nextDisputeHash(t.e.hasher, t.c.DisputeHash, t.c.Round, challenge)
	}
}

func saturatingInc(n uint8) uint8 {
	if n == ^uint8(0) {
		return n
	}
	return n + 1
}
