// sharedbus/cmd/selftest/main.go
//
// Host-runnable self-test for the shared bus manager: exercises lazy
// creation, refcounting, advisory teardown, resource round-tripping, and
// poisoning, printing a PASS/FAIL line per scenario.
package main

import (
	"errors"
	"os"
	"sync"

	"wearcode-go/sharedbus"
)

// res stands in for a pin/peripheral claim.
type res struct{ id int }

// wire is the fake bus object handed to users.
type wire struct{ from res }

type factory struct {
	failNext bool
	creates  int
}

func (f *factory) Create(r res) (*wire, sharedbus.Destroy[res], error) {
	if f.failNext {
		f.failNext = false
		return nil, nil, errors.New("selftest: injected create fault")
	}
	f.creates++
	return &wire{from: r}, func() res { return r }, nil
}

func TestLazyCreation(f *factory, m *sharedbus.Manager[res, *wire]) bool {
	if m.Live() {
		return false
	}
	before := f.creates
	h, err := m.Acquire()
	if err != nil || !m.Live() || m.Users() != 1 {
		return false
	}
	h.Close()
	return f.creates == before+1
}

func TestSharedAcrossUsers(f *factory, m *sharedbus.Manager[res, *wire]) bool {
	before := f.creates
	var wg sync.WaitGroup
	handles := make([]*sharedbus.Handle[*wire], 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire()
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()
	ok := m.Users() == 8 && f.creates == before+1
	for _, h := range handles {
		if h == nil {
			return false
		}
		h.Close()
	}
	return ok
}

func TestAdvisoryRelease(f *factory, m *sharedbus.Manager[res, *wire]) bool {
	h, err := m.Acquire()
	if err != nil {
		return false
	}
	var inUse *sharedbus.InUseError
	if err := m.TryRelease(); !errors.As(err, &inUse) || inUse.Users != 1 {
		return false
	}
	h.Close()
	if err := m.TryRelease(); err != nil {
		return false
	}
	return !m.Live()
}

func TestResourcesSurviveFailure(f *factory, m *sharedbus.Manager[res, *wire]) bool {
	f.failNext = true
	if _, err := m.Acquire(); err == nil {
		return false
	}
	// The claim went back; the next acquire must succeed with it.
	h, err := m.Acquire()
	if err != nil {
		return false
	}
	ok := h.Bus().from.id == 7
	h.Close()
	return ok && m.TryRelease() == nil
}

func TestReleaseWhileDownIsNoOp(f *factory, m *sharedbus.Manager[res, *wire]) bool {
	return m.TryRelease() == nil && !m.Live()
}

func main() {
	f := &factory{}
	m := sharedbus.New[res, *wire](f, res{id: 7})

	tests := []struct {
		name string
		fn   func(*factory, *sharedbus.Manager[res, *wire]) bool
	}{
		{"TestLazyCreation", TestLazyCreation},
		{"TestAdvisoryRelease", TestAdvisoryRelease},
		{"TestReleaseWhileDownIsNoOp", TestReleaseWhileDownIsNoOp},
		{"TestSharedAcrossUsers", TestSharedAcrossUsers},
		{"TestResourcesSurviveFailure", TestResourcesSurviveFailure},
	}

	passed, failed := 0, 0
	println("== sharedbus self-test starting ==")
	for _, tc := range tests {
		// Each scenario starts from a torn-down bus.
		_ = m.TryRelease()
		if tc.fn(f, m) {
			println("[PASS]", tc.name)
			passed++
		} else {
			println("[FAIL]", tc.name)
			failed++
		}
	}
	println("== done:", passed, "passed,", failed, "failed ==")
	if failed > 0 {
		os.Exit(1)
	}
}
