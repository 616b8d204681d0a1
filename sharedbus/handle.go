// sharedbus/handle.go
package sharedbus

import "sync/atomic"

// Handle is a non-owning view of the live bus. Many handles may coexist;
// all observe the same bus instance. The bus stays valid for the life of
// the handle: the Manager refuses teardown while any handle is open.
//
// Mutual exclusion of transactions on the bus itself is the bus's own
// concern; a Handle only manages lifetime.
type Handle[B any] struct {
	bus     B
	release func()
	closed  atomic.Bool
}

// Bus returns the shared bus. Must not be called after Close.
func (h *Handle[B]) Bus() B { return h.bus }

// Close releases the handle, decrementing the Manager's user count
// exactly once. Further calls are no-ops.
func (h *Handle[B]) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.release()
}
