// Package batch coalesces items added within a rolling debounce window
// into a single downstream call.
package batch

import (
	"sync"
	"time"
)

// Batcher accumulates items and flushes them as one batch once the window
// elapses with no further additions. Only one flush runs at a time; a
// timer firing while a flush is in flight is suppressed, and the pending
// items go out with the next window. Clear and Close cancel a pending
// timer so a stale flush can never fire afterwards.
type Batcher[T any] struct {
	mu       sync.Mutex
	window   time.Duration
	flush    func([]T)
	items    []T
	timer    *time.Timer
	inFlight bool
	closed   bool
}

func New[T any](window time.Duration, flush func([]T)) *Batcher[T] {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Batcher[T]{
		window: window,
		flush:  flush,
	}
}

// Add queues an item and restarts the debounce window.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.items = append(b.items, item)
	b.rearmLocked()
}

// Clear drops queued items and cancels the pending flush.
func (b *Batcher[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.stopTimerLocked()
}

// Close cancels any pending flush and rejects further additions. Items
// still queued are dropped, matching unmount semantics.
func (b *Batcher[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.items = nil
	b.stopTimerLocked()
}

// Flush forces the queued items out immediately, subject to the same
// single-in-flight rule.
func (b *Batcher[T]) Flush() {
	b.fire()
}

func (b *Batcher[T]) fire() {
	b.mu.Lock()
	if b.closed || b.inFlight || len(b.items) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.items
	b.items = nil
	b.inFlight = true
	b.mu.Unlock()

	b.flush(batch)

	b.mu.Lock()
	b.inFlight = false
	if !b.closed && len(b.items) > 0 {
		b.rearmLocked()
	}
	b.mu.Unlock()
}

func (b *Batcher[T]) rearmLocked() {
	b.stopTimerLocked()
	b.timer = time.AfterFunc(b.window, b.fire)
}

func (b *Batcher[T]) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
