package pool

import (
	"github.com/R3E-Network/teepool/internal/commitment"
)

const (
	// PoolSize is the number of operator slots per pool.
	PoolSize = 3

	// DefaultTimeoutInterval is the length of every response window in
	// seconds. An unresolved pool is crashable after at most three windows.
	DefaultTimeoutInterval uint64 = 15

	// MaxTimeoutInterval bounds configured response windows (about 136 years).
	MaxTimeoutInterval uint64 = 1 << 32

	// NoSlot marks the absence of a challenged watchdog.
	NoSlot = -1
)

// Contract is the per-pool record. Values returned by the engine are copies.
type Contract struct {
	ID    PoolID `json:"id"`
	Phase Phase  `json:"phase"`

	// IncrementalTxHash is the registry epoch captured by InitCreation.
	IncrementalTxHash commitment.Hash `json:"incremental_tx_hash"`

	// PoolAddress is empty until the pool reaches Executing.
	PoolAddress      string           `json:"pool_address,omitempty"`
	CreationOperator string           `json:"creation_operator"`
	Operators        [PoolSize]string `json:"operators"`
	// ExecutiveOperator indexes Operators.
	ExecutiveOperator int             `json:"executive_operator"`
	CodeHash          commitment.Hash `json:"code_hash"`

	// FallbackPhase is the phase a watchdog dispute returns to.
	FallbackPhase Phase `json:"fallback_phase"`
	// FallbackRemaining is the executor response time left when a nested
	// watchdog dispute suspended it.
	FallbackRemaining uint64 `json:"fallback_remaining,omitempty"`

	ExecChallengeHash     commitment.Hash `json:"exec_challenge_hash"`
	WatchdogChallengeHash commitment.Hash `json:"watchdog_challenge_hash"`
	// ChallengedSlot is the watchdog slot under dispute, or NoSlot.
	ChallengedSlot int `json:"challenged_slot"`
	// ChallengedWatchdogs counts lifetime challenges per slot.
	ChallengedWatchdogs [PoolSize]uint8 `json:"challenged_watchdogs"`
	// WatchdogsChallenged counts watchdog challenges opened since the last
	// executor challenge.
	WatchdogsChallenged uint8 `json:"watchdogs_challenged"`

	// DisputeHash is the anchor response signatures bind to. It starts at
	// IncrementalTxHash and, when dispute chaining is on, absorbs every
	// challenge opened on the pool.
	DisputeHash commitment.Hash `json:"dispute_hash"`
	Round       uint64          `json:"round"`

	// Deadline is zero when no response is pending.
	Deadline  uint64 `json:"deadline"`
	CreatedAt uint64 `json:"created_at"`
	UpdatedAt uint64 `json:"updated_at"`
}

// Executive returns the executive operator's registry address. An empty slot
// outside Creation is an internal inconsistency and panics.
func (c *Contract) Executive() string {
	if c.ExecutiveOperator < 0 || c.ExecutiveOperator >= PoolSize {
		panic(invariant(c.ID, "executive index %d out of range", c.ExecutiveOperator))
	}
	addr := c.Operators[c.ExecutiveOperator]
	if addr == "" && c.Phase != PhaseNone && c.Phase != PhaseCreation {
		panic(invariant(c.ID, "executive slot %d empty in phase %s", c.ExecutiveOperator, c.Phase))
	}
	return addr
}

// Expired reports whether the pool is past a pending deadline at now.
func (c *Contract) Expired(now uint64) bool {
	return c.Phase.HasDeadline() && now > c.Deadline
}
