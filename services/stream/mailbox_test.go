package stream

import "testing"

func TestMailbox_OverwriteLatest(t *testing.T) {
	m := NewMailbox[command[int]]()
	m.Put(command[int]{cfg: 1})
	m.Put(command[int]{cfg: 2})

	cmd, ok := m.Take()
	if !ok || cmd.cfg != 2 {
		t.Fatalf("expected latest request 2, got %v ok=%v", cmd.cfg, ok)
	}
	if _, ok := m.Take(); ok {
		t.Fatal("superseded request must not be replayed")
	}
}

func TestMailbox_ReadyCoalesces(t *testing.T) {
	m := NewMailbox[int]()
	m.Put(1)
	m.Put(2)
	m.Put(3)

	<-m.Ready()
	select {
	case <-m.Ready():
		t.Fatal("ready must coalesce to a single wake")
	default:
	}
	if v, ok := m.Take(); !ok || v != 3 {
		t.Fatalf("got %v ok=%v, want 3", v, ok)
	}
}

func TestMailbox_Reset(t *testing.T) {
	m := NewMailbox[int]()
	m.Put(7)
	m.Reset()

	if _, ok := m.Take(); ok {
		t.Fatal("reset must clear the slot")
	}
	select {
	case <-m.Ready():
		t.Fatal("reset must clear the pending wake")
	default:
	}
}
