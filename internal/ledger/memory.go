// Package ledger provides the in-memory funds mover used by the pool engine
// in tests and the demo command.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Transfer is one applied movement of funds.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Memory is a thread-safe balance sheet keyed by identity.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]uint64
	history  []Transfer
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]uint64)}
}

// Credit mints amount into account.
func (m *Memory) Credit(account string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[account] > math.MaxUint64-amount {
		return fmt.Errorf("credit %s: balance overflow", account)
	}
	m.balances[account] += amount
	return nil
}

// Balance returns the funds held by account.
func (m *Memory) Balance(account string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account]
}

// Transfer moves amount from one account to another atomically.
func (m *Memory) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return fmt.Errorf("transfer %s -> %s: %w: same account", from, to, ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w (balance %d)", amount, from, ErrInsufficientFunds, m.balances[from])
	}
	if m.balances[to] > math.MaxUint64-amount {
		return fmt.Errorf("transfer %d to %s: balance overflow", amount, to)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	m.history = append(m.history, Transfer{From: from, To: to, Amount: amount})
	return nil
}

// History returns every applied transfer in order.
func (m *Memory) History() []Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transfer(nil), m.history...)
}

// Accounts returns every account holding a non-zero balance, sorted.
func (m *Memory) Accounts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.balances))
	for acct, bal := range m.balances {
		if bal > 0 {
			out = append(out, acct)
		}
	}
	sort.Strings(out)
	return out
}
