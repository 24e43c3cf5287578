package pool

import (
	"context"
	"fmt"
	"strconv"

	"github.com/R3E-Network/teepool/internal/events"
)

// CheckTimeout crashes a pool whose pending response is overdue. It fails
// with ErrDeadlinePending while the deadline is still open and with
// ErrWrongPhase when no response is pending. Anyone may call it.
func (e *Engine) CheckTimeout(ctx context.Context, id PoolID) (Phase, error) {
	t, err := e.begin(ctx, "check_timeout", id)
	if err != nil {
		return PhaseNone, err
	}
	defer t.end()

	if err := t.requirePhase(PhaseCreation, PhaseChallengeExecutor, PhaseChallengeWatchdog); err != nil {
		return t.c.Phase, err
	}
	if !t.c.Expired(t.now) {
		return t.c.Phase, t.reject(ErrDeadlinePending, fmt.Errorf("deadline %d not passed at %d", t.c.Deadline, t.now))
	}

	from := t.c.Phase
	t.c.Phase = PhaseCrashed
	t.c.FallbackPhase = PhaseNone
	t.c.FallbackRemaining = 0

	e.metrics.RecordCrash(from.String())
	t.commit(from, events.NewEvent(events.EventPoolCrashed).
		Severity(events.SeverityWarning).
		Metadata("deadline", strconv.FormatUint(t.c.Deadline, 10)).
		Message(fmt.Sprintf("no response by %d, pool frozen", t.c.Deadline)))

	return t.c.Phase, nil
}
