package spawn

import (
	"testing"
)

func TestPool_AccountsPerTier(t *testing.T) {
	p := NewPool()
	release := make(chan struct{})

	p.Go(TierHigh, "a", func() { <-release })
	p.Go(TierHigh, "b", func() { <-release })
	p.Go(TierLow, "c", func() { <-release })

	// Tasks start asynchronously; counters are bumped before launch.
	if got := p.Running(TierHigh); got != 2 {
		t.Fatalf("high tier: got %d, want 2", got)
	}
	if got := p.Running(TierLow); got != 1 {
		t.Fatalf("low tier: got %d, want 1", got)
	}
	if got := p.Total(); got != 3 {
		t.Fatalf("total: got %d, want 3", got)
	}

	close(release)
	p.Wait()

	// Counters drop before the waitgroup releases.
	if got := p.Total(); got != 0 {
		t.Fatalf("total after Wait: got %d, want 0", got)
	}
}

func TestPool_NilTaskPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil task")
		}
	}()
	NewPool().Go(TierMedium, "nil", nil)
}
