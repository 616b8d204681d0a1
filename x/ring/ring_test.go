package ring

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	r := New(64)
	if !r.WriteFrame([]byte("abc")) {
		t.Fatal("write failed")
	}
	if !r.WriteFrame([]byte("defgh")) {
		t.Fatal("write failed")
	}

	var buf [16]byte
	n := r.ReadFrame(buf[:])
	if n != 3 || !bytes.Equal(buf[:n], []byte("abc")) {
		t.Fatalf("frame 1: n=%d buf=%q", n, buf[:n])
	}
	n = r.ReadFrame(buf[:])
	if n != 5 || !bytes.Equal(buf[:n], []byte("defgh")) {
		t.Fatalf("frame 2: n=%d buf=%q", n, buf[:n])
	}
	if n = r.ReadFrame(buf[:]); n != 0 {
		t.Fatalf("expected empty ring, got %d", n)
	}
}

func TestWriteFrame_AllOrNothing(t *testing.T) {
	r := New(16)
	if !r.WriteFrame(make([]byte, 10)) {
		t.Fatal("first write should fit")
	}
	if r.WriteFrame(make([]byte, 10)) {
		t.Fatal("second write must be refused, not truncated")
	}
	if got := r.Available(); got != 12 {
		t.Fatalf("available: got %d, want 12", got)
	}
}

func TestFrameWrapsAroundBoundary(t *testing.T) {
	r := New(16)
	var buf [16]byte

	// Advance the indices so the next frame straddles the wrap point.
	for i := 0; i < 3; i++ {
		if !r.WriteFrame([]byte{byte(i), byte(i)}) {
			t.Fatal("write failed")
		}
		if n := r.ReadFrame(buf[:]); n != 2 {
			t.Fatalf("read %d", n)
		}
	}
	payload := []byte{9, 8, 7, 6, 5, 4}
	if !r.WriteFrame(payload) {
		t.Fatal("wrapping write failed")
	}
	n := r.ReadFrame(buf[:])
	if n != len(payload) || !bytes.Equal(buf[:n], payload) {
		t.Fatalf("wrap: n=%d buf=%v", n, buf[:n])
	}
}

func TestReadFrame_DstTooSmall(t *testing.T) {
	r := New(32)
	r.WriteFrame([]byte("0123456789"))
	r.WriteFrame([]byte("ab"))

	var small [4]byte
	if n := r.ReadFrame(small[:]); n != -1 {
		t.Fatalf("expected -1 for oversized frame, got %d", n)
	}
	// The oversized frame is consumed; the next one is intact.
	if n := r.ReadFrame(small[:]); n != 2 || !bytes.Equal(small[:n], []byte("ab")) {
		t.Fatalf("next frame: n=%d buf=%q", n, small[:n])
	}
}

func TestReadableEdge(t *testing.T) {
	r := New(32)
	select {
	case <-r.Readable():
		t.Fatal("readable before any write")
	default:
	}
	r.WriteFrame([]byte{1})
	select {
	case <-r.Readable():
	default:
		t.Fatal("expected readable edge after first write")
	}
}
