// x/ring/ring.go
package ring

import (
	"sync/atomic"
)

// Ring is a single-producer, single-consumer byte ring used to buffer
// recorder frames between the capture task and the flash flusher.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // 0->>0 available edge
}

// New allocates a ring. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ring: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Space reports writable bytes.
func (r *Ring) Space() int {
	return int(r.size() - (r.wr.Load() - r.rd.Load()))
}

// Available reports readable bytes.
func (r *Ring) Available() int {
	return int(r.wr.Load() - r.rd.Load())
}

// Reset discards all buffered data. Producer-side only, and only while
// the consumer is quiescent.
func (r *Ring) Reset() {
	r.rd.Store(r.wr.Load())
	select {
	case <-r.readable:
	default:
	}
}

// WriteFrame appends one length-prefixed frame. All-or-nothing: when the
// payload plus its 2-byte prefix does not fit, nothing is written and
// false is returned so the caller can drop and warn.
func (r *Ring) WriteFrame(p []byte) bool {
	need := len(p) + 2
	if len(p) > 0xffff || need > int(r.size()) {
		return false
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	beforeAvail := wr - rd
	if int(r.size()-beforeAvail) < need {
		return false
	}

	var hdr [2]byte
	hdr[0] = byte(len(p) >> 8)
	hdr[1] = byte(len(p))
	wr = r.copyIn(wr, hdr[:])
	wr = r.copyIn(wr, p)
	r.wr.Store(wr) // release

	if beforeAvail == 0 {
		select {
		case r.readable <- struct{}{}:
		default:
		}
	}
	return true
}

// ReadFrame pops one frame into dst, returning its length. Returns 0 when
// the ring is empty and -1 when dst is too small (the frame is dropped).
func (r *Ring) ReadFrame(dst []byte) int {
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	if wr-rd < 2 {
		return 0
	}
	n := int(r.at(rd))<<8 | int(r.at(rd+1))
	if int(wr-rd) < 2+n {
		// Half-written frame cannot happen with a single producer;
		// treat as empty until the producer store lands.
		return 0
	}
	rd += 2
	if n > len(dst) {
		r.rd.Store(rd + uint32(n))
		return -1
	}
	r.copyOut(rd, dst[:n])
	r.rd.Store(rd + uint32(n))
	return n
}

// Readable signals the 0->>0 available transition.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

func (r *Ring) at(idx uint32) byte { return r.buf[idx&r.mask] }

func (r *Ring) copyIn(wr uint32, src []byte) uint32 {
	idx := wr & r.mask
	first := int(r.size() - idx)
	if first > len(src) {
		first = len(src)
	}
	copy(r.buf[idx:idx+uint32(first)], src[:first])
	if second := len(src) - first; second > 0 {
		copy(r.buf[:second], src[first:])
	}
	return wr + uint32(len(src))
}

func (r *Ring) copyOut(rd uint32, dst []byte) {
	idx := rd & r.mask
	first := int(r.size() - idx)
	if first > len(dst) {
		first = len(dst)
	}
	copy(dst[:first], r.buf[idx:idx+uint32(first)])
	if second := len(dst) - first; second > 0 {
		copy(dst[first:], r.buf[:second])
	}
}
