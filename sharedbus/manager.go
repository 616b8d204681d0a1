// sharedbus/manager.go
//
// Lazily-created, reference-counted ownership of a shared peripheral bus.
// One Manager owns the inert resources for one physical bus (typically the
// I2C controller plus its pins). The bus object is created on the first
// Acquire and torn down only by an explicit TryRelease once every Handle
// has been closed.
package sharedbus

import (
	"strconv"
	"sync"
	"sync/atomic"

	"wearcode-go/errcode"
)

// Destroy recovers the original resources from a live bus. It is returned
// by Factory.Create, held by the Manager while the bus is live, and never
// exposed outside it.
type Destroy[R any] func() R

// Factory turns inert resources into a live bus and back.
//
// Create must leave the resources usable on failure: the Manager retains
// its copy and a later Acquire retries with the same resources. A Create
// immediately followed by the returned Destroy must round-trip to the
// original resources.
type Factory[R, B any] interface {
	Create(res R) (B, Destroy[R], error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc[R, B any] func(res R) (B, Destroy[R], error)

func (f FactoryFunc[R, B]) Create(res R) (B, Destroy[R], error) { return f(res) }

// InUseError reports a refused teardown. Users is the exact number of
// outstanding handles at the time of the call.
type InUseError struct {
	Users int
}

func (e *InUseError) Error() string {
	return string(errcode.BusInUse) + ": " + strconv.Itoa(e.Users) + " handles outstanding"
}

func (e *InUseError) Code() errcode.Code { return errcode.BusInUse }

type state uint8

const (
	stateEmpty state = iota
	stateLive
	statePoisoned
)

// Manager owns one shared bus. The zero value is not usable; construct
// with New.
//
// State machine: Empty (resources held) -> Live (bus + destroy + users)
// on Acquire; Live -> Empty on TryRelease with zero users. Poisoned is
// terminal and entered only when an internal invariant is violated.
type Manager[R, B any] struct {
	factory Factory[R, B]

	mu      sync.Mutex
	st      state
	res     R
	bus     B
	destroy Destroy[R]
	users   atomic.Int32
}

// New builds an empty Manager holding res.
func New[R, B any](factory Factory[R, B], res R) *Manager[R, B] {
	return &Manager[R, B]{factory: factory, res: res}
}

// Acquire returns a Handle on the live bus, creating the bus first if the
// Manager is empty. Concurrent callers racing against an empty Manager are
// serialized on the internal lock, so the factory's Create runs at most
// once per Empty->Live transition; losers of the race observe the live bus
// and only increment the user count.
//
// On factory failure the Manager stays empty, keeps its resources, and
// surfaces the error. Retry policy belongs to the caller.
func (m *Manager[R, B]) Acquire() (*Handle[B], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.st {
	case statePoisoned:
		return nil, errcode.BusPoisoned
	case stateLive:
		m.users.Add(1)
		return &Handle[B]{bus: m.bus, release: m.handleClosed}, nil
	}

	b, destroy, err := m.factory.Create(m.res)
	if err != nil {
		return nil, &errcode.E{C: errcode.CreateFailed, Op: "sharedbus.Acquire", Err: err}
	}
	if destroy == nil {
		// A live bus without a way back to its resources breaks the
		// teardown contract; refuse to continue.
		m.poisonLocked()
		return nil, errcode.BusPoisoned
	}

	m.bus = b
	m.destroy = destroy
	var zero R
	m.res = zero // resources now live inside the bus
	m.st = stateLive
	m.users.Store(1)
	return &Handle[B]{bus: m.bus, release: m.handleClosed}, nil
}

// TryRelease tears the bus down if no handles are outstanding, restoring
// the resources recovered from it. With outstanding handles it refuses
// with *InUseError and changes nothing: teardown is advisory and a Handle
// is never revoked. Releasing an already-empty Manager is a no-op.
func (m *Manager[R, B]) TryRelease() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.st {
	case statePoisoned:
		return errcode.BusPoisoned
	case stateEmpty:
		return nil
	}

	if n := m.users.Load(); n > 0 {
		return &InUseError{Users: int(n)}
	}

	m.res = m.destroy()
	m.destroy = nil
	var zero B
	m.bus = zero
	m.st = stateEmpty
	return nil
}

// Users reports the number of outstanding handles.
func (m *Manager[R, B]) Users() int {
	return int(m.users.Load())
}

// Live reports whether the bus currently exists.
func (m *Manager[R, B]) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st == stateLive
}

// handleClosed is the Handle's release hook: exactly one decrement per
// handle. An underflow means a handle was double-released through the
// guard, which cannot happen short of memory corruption; poison rather
// than continue with a miscounted bus.
func (m *Manager[R, B]) handleClosed() {
	if m.users.Add(-1) < 0 {
		m.mu.Lock()
		m.poisonLocked()
		m.mu.Unlock()
	}
}

func (m *Manager[R, B]) poisonLocked() {
	m.st = statePoisoned
	m.destroy = nil
	var zr R
	m.res = zr
	var zb B
	m.bus = zb
	println("Error: sharedbus: manager poisoned")
}
