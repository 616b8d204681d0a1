// services/stream/mailbox.go
package stream

import "sync"

// Mailbox is a single-slot, overwrite-latest signal. A Put supersedes any
// unconsumed value: requests are idempotent state descriptions, not events
// to replay, so the consumer only ever needs the most recent one.
type Mailbox[T any] struct {
	mu    sync.Mutex
	full  bool
	v     T
	ready chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, overwriting any pending value, and wakes the consumer.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.v = v
	m.full = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the pending value, if any. A spurious wake via
// Ready after a Take simply observes an empty slot.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.full {
		var zero T
		return zero, false
	}
	v := m.v
	var zero T
	m.v = zero
	m.full = false
	return v, true
}

// Ready signals that a value may be pending.
func (m *Mailbox[T]) Ready() <-chan struct{} { return m.ready }

// Reset clears the slot and any pending wake.
func (m *Mailbox[T]) Reset() {
	m.mu.Lock()
	var zero T
	m.v = zero
	m.full = false
	m.mu.Unlock()

	select {
	case <-m.ready:
	default:
	}
}
