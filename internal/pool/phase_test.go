package pool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseNone, "none"},
		{PhaseCreation, "creation"},
		{PhaseExecuting, "executing"},
		{PhaseChallengeExecutor, "challenge_executor"},
		{PhaseChallengeWatchdog, "challenge_watchdog"},
		{PhaseCrashed, "crashed"},
		{Phase(42), "phase(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.String())
		if tt.phase <= PhaseCrashed {
			assert.Equal(t, tt.phase, ParsePhase(tt.want))
		}
	}
	assert.Equal(t, PhaseChallengeWatchdog, ParsePhase("challenge-watchdog"))
	assert.Equal(t, PhaseNone, ParsePhase("bogus"))
}

func TestPhase_JSON(t *testing.T) {
	data, err := json.Marshal(PhaseChallengeExecutor)
	require.NoError(t, err)
	assert.Equal(t, `"challenge_executor"`, string(data))

	var p Phase
	require.NoError(t, json.Unmarshal([]byte(`"crashed"`), &p))
	assert.Equal(t, PhaseCrashed, p)
	assert.Error(t, json.Unmarshal([]byte(`3`), &p))
}

func TestPhase_Predicates(t *testing.T) {
	assert.True(t, PhaseCrashed.IsTerminal())
	assert.False(t, PhaseExecuting.IsTerminal())

	assert.True(t, PhaseChallengeExecutor.IsDispute())
	assert.True(t, PhaseChallengeWatchdog.IsDispute())
	assert.False(t, PhaseCreation.IsDispute())

	for _, p := range []Phase{PhaseCreation, PhaseChallengeExecutor, PhaseChallengeWatchdog} {
		assert.True(t, p.HasDeadline(), p.String())
	}
	for _, p := range []Phase{PhaseNone, PhaseExecuting, PhaseCrashed} {
		assert.False(t, p.HasDeadline(), p.String())
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Phase }{
		{PhaseNone, PhaseCreation},
		{PhaseCreation, PhaseExecuting},
		{PhaseCreation, PhaseCrashed},
		{PhaseExecuting, PhaseExecuting},
		{PhaseExecuting, PhaseChallengeExecutor},
		{PhaseExecuting, PhaseChallengeWatchdog},
		{PhaseChallengeExecutor, PhaseChallengeWatchdog},
		{PhaseChallengeWatchdog, PhaseChallengeExecutor},
		{PhaseChallengeWatchdog, PhaseExecuting},
		{PhaseChallengeWatchdog, PhaseCrashed},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	denied := []struct{ from, to Phase }{
		{PhaseNone, PhaseNone},
		{PhaseNone, PhaseExecuting},
		{PhaseCreation, PhaseChallengeExecutor},
		{PhaseExecuting, PhaseCrashed},
		{PhaseExecuting, PhaseCreation},
		{PhaseCrashed, PhaseCrashed},
		{PhaseCrashed, PhaseExecuting},
	}
	for _, tt := range denied {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestContract_Executive(t *testing.T) {
	c := Contract{Phase: PhaseExecuting, Operators: testOperators, ExecutiveOperator: 1}
	assert.Equal(t, "B", c.Executive())

	creating := Contract{Phase: PhaseCreation}
	assert.Empty(t, creating.Executive())

	broken := Contract{ID: NewPoolID(7), Phase: PhaseExecuting}
	assert.PanicsWithError(t, "pool 7: invariant violated: executive slot 0 empty in phase executing", func() {
		broken.Executive()
	})

	outOfRange := Contract{Phase: PhaseExecuting, Operators: testOperators, ExecutiveOperator: PoolSize}
	assert.Panics(t, func() { outOfRange.Executive() })
}
