package pool

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrPoolExists         = errors.New("pool exists")
	ErrPoolNotFound       = errors.New("pool not found")
	ErrWrongPhase         = errors.New("wrong phase")
	ErrDeadlineExpired    = errors.New("deadline expired")
	ErrDeadlinePending    = errors.New("deadline not reached")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrUnauthorizedCaller = errors.New("unauthorized caller")
	ErrInvalidSlot        = errors.New("invalid slot")
	ErrChallengeLimit     = errors.New("watchdog challenge limit reached")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrLedger             = errors.New("ledger transfer failed")
)

// Error is returned by every engine operation that rejects a request.
type Error struct {
	Op   string
	ID   PoolID
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s pool %s: %v", e.Op, e.ID, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvariantError describes an internal inconsistency. It is only ever raised
// through panic.
type InvariantError struct {
	ID     PoolID
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("pool %s: invariant violated: %s", e.ID, e.Detail)
}

func invariant(id PoolID, format string, args ...interface{}) *InvariantError {
	return &InvariantError{ID: id, Detail: fmt.Sprintf(format, args...)}
}
