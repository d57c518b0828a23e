// Package optimistic tracks the lifecycle of a speculatively updated value:
// Idle -> Pending(optimistic) -> Committed or RolledBack. The explicit
// state machine keeps "show the pending value now, reconcile when the
// confirmation resolves" independent of any cache or transport.
package optimistic

import "sync"

type State int

const (
	Idle State = iota
	Pending
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

// Field holds one mutable value plus its optimistic shadow.
type Field[T any] struct {
	mu        sync.Mutex
	state     State
	confirmed T
	pending   T
}

func NewField[T any](initial T) *Field[T] {
	return &Field[T]{state: Idle, confirmed: initial}
}

// Begin stages an optimistic value. Beginning while already pending
// replaces the staged value; the confirmed value is untouched.
func (f *Field[T]) Begin(value T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = value
	f.state = Pending
}

// Commit promotes the pending value to confirmed. Without a pending value
// it is a no-op.
func (f *Field[T]) Commit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Pending {
		return
	}
	f.confirmed = f.pending
	f.state = Committed
}

// Rollback discards the pending value. Without a pending value it is a
// no-op.
func (f *Field[T]) Rollback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Pending {
		return
	}
	var zero T
	f.pending = zero
	f.state = RolledBack
}

// Value returns the pending value while one is staged, else the confirmed
// value.
func (f *Field[T]) Value() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Pending {
		return f.pending
	}
	return f.confirmed
}

func (f *Field[T]) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
