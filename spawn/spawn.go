// spawn/spawn.go
package spawn

import (
	"sync"
	"sync/atomic"
)

// Tier groups tasks by scheduling priority. On the single-core target all
// goroutines are cooperative; the tier is an accounting and diagnostics
// label, and the contract that higher tiers may delay lower ones but never
// corrupt shared state is carried by the tasks themselves.
type Tier uint8

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
	tierCount
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	}
	return "?"
}

// Pool launches worker tasks and tracks them per tier. Go has must-succeed
// semantics: a nil task is a programming error and panics at the call site.
type Pool struct {
	wg      sync.WaitGroup
	running [tierCount]atomic.Int32
}

func NewPool() *Pool { return &Pool{} }

// Go starts fn as a task in the given tier. It never fails; fn runs until
// it returns and is accounted against its tier for the duration.
func (p *Pool) Go(tier Tier, name string, fn func()) {
	if fn == nil {
		panic("spawn: nil task " + name)
	}
	if tier >= tierCount {
		tier = TierLow
	}
	p.wg.Add(1)
	p.running[tier].Add(1)
	go func() {
		defer func() {
			p.running[tier].Add(-1)
			p.wg.Done()
		}()
		fn()
	}()
}

// Running reports the number of live tasks in a tier.
func (p *Pool) Running(tier Tier) int {
	if tier >= tierCount {
		return 0
	}
	return int(p.running[tier].Load())
}

// Total reports the number of live tasks across all tiers.
func (p *Pool) Total() int {
	n := 0
	for i := Tier(0); i < tierCount; i++ {
		n += int(p.running[i].Load())
	}
	return n
}

// Wait blocks until every task started so far has returned.
func (p *Pool) Wait() { p.wg.Wait() }
