package parallel

import "sync"

// Barrier is a reusable counting barrier for a fixed number of parties.
//
// Wait blocks until all parties have called it, then releases them together
// and resets for the next round. A generation counter keeps a fast party
// that re-enters Wait from being released by the previous round.
type Barrier struct {
	parties    int
	mu         sync.Mutex
	cond       *sync.Cond
	waiting    int
	generation uint64
}

// NewBarrier creates a barrier for n parties. n < 1 is treated as 1.
func NewBarrier(n int) *Barrier {
	if n < 1 {
		n = 1
	}
	b := &Barrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of parties the barrier waits for.
func (b *Barrier) Parties() int {
	return b.parties
}

// Wait blocks until every party has reached the barrier.
func (b *Barrier) Wait() {
	if b.parties == 1 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}
