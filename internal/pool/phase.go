package pool

import (
	"encoding/json"
	"fmt"
)

// Phase is the lifecycle phase of a pool.
type Phase int32

const (
	// PhaseNone is the zero value: no pool, or no fallback in effect.
	PhaseNone Phase = iota

	// PhaseCreation waits for a signed creation attestation.
	PhaseCreation

	// PhaseExecuting serves deposits and withdrawals.
	PhaseExecuting

	// PhaseChallengeExecutor waits for the executive operator's response.
	PhaseChallengeExecutor

	// PhaseChallengeWatchdog waits for a challenged watchdog's response.
	PhaseChallengeWatchdog

	// PhaseCrashed is terminal: funds are frozen for external arbitration.
	PhaseCrashed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseCreation:
		return "creation"
	case PhaseExecuting:
		return "executing"
	case PhaseChallengeExecutor:
		return "challenge_executor"
	case PhaseChallengeWatchdog:
		return "challenge_watchdog"
	case PhaseCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*p = ParsePhase(str)
	return nil
}

// ParsePhase converts a string to Phase. Unknown strings map to PhaseNone.
func ParsePhase(s string) Phase {
	switch s {
	case "creation":
		return PhaseCreation
	case "executing":
		return PhaseExecuting
	case "challenge_executor", "challenge-executor":
		return PhaseChallengeExecutor
	case "challenge_watchdog", "challenge-watchdog":
		return PhaseChallengeWatchdog
	case "crashed":
		return PhaseCrashed
	default:
		return PhaseNone
	}
}

// IsTerminal reports whether no operation can leave this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseCrashed
}

// IsDispute reports whether a challenge is outstanding.
func (p Phase) IsDispute() bool {
	return p == PhaseChallengeExecutor || p == PhaseChallengeWatchdog
}

// HasDeadline reports whether the phase runs against a deadline and can
// therefore be crashed by CheckTimeout.
func (p Phase) HasDeadline() bool {
	return p == PhaseCreation || p.IsDispute()
}

// ValidTransitions lists every phase change the engine performs.
var ValidTransitions = map[Phase][]Phase{
	PhaseNone:              {PhaseCreation},
	PhaseCreation:          {PhaseExecuting, PhaseCrashed},
	PhaseExecuting:         {PhaseChallengeExecutor, PhaseChallengeWatchdog},
	PhaseChallengeExecutor: {PhaseExecuting, PhaseChallengeWatchdog, PhaseCrashed},
	PhaseChallengeWatchdog: {PhaseExecuting, PhaseChallengeExecutor, PhaseCrashed},
}

// CanTransition returns true if the transition from -> to is valid. Staying
// in the same phase is always allowed except for terminal phases.
func CanTransition(from, to Phase) bool {
	if from == to {
		return from != PhaseNone && !from.IsTerminal()
	}
	for _, p := range ValidTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}
