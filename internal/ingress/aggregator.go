// Package ingress implements the Ingress Aggregator (C1): deduplication of
// price-update events arriving from N upstream feeds into a single
// canonical event per (pool_address, slot).
package ingress

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// ringDepth is the size of the per-pool accepted-slot ring. Only the
// high-water mark is load-bearing for acceptance; the ring exists so
// diagnostics can report recent slot churn without an unbounded history.
const ringDepth = 32

type poolState struct {
	lastAcceptedSlot uint64
	ring             [ringDepth]uint64
	ringPos          int
}

// Aggregator is the many-writer, single-reader dedup stage in front of the
// pool graph. Submit is safe for concurrent use by multiple feed producers;
// Drain is intended for the single engine-task consumer.
type Aggregator struct {
	mu     sync.Mutex
	states map[models.PoolAddress]*poolState
	queue  []models.PriceUpdateEvent

	accepted  atomic.Int64
	rejected  atomic.Int64
	malformed atomic.Int64
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		states: make(map[models.PoolAddress]*poolState),
	}
}

func malformed(event models.PriceUpdateEvent) bool {
	if event.SourceMint == event.TargetMint {
		return true
	}
	if event.NewRate <= 0 {
		return true
	}
	if event.NewFeeBps > 10_000 {
		return true
	}
	return false
}

// Submit accepts event iff slot > last_accepted_slot[pool_address]. Ties on
// slot are broken by arrival order: the first copy of a given slot wins and
// later copies for the same slot are dropped, matching spec semantics
// ("the slot has already been committed"). Malformed events are counted and
// dropped silently; Submit never returns an error.
func (a *Aggregator) Submit(event models.PriceUpdateEvent) {
	if malformed(event) {
		a.malformed.Add(1)
		log.Printf("[Ingress] dropping malformed event pool=%x slot=%d", event.PoolAddress, event.Slot)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.states[event.PoolAddress]
	if !ok {
		st = &poolState{}
		a.states[event.PoolAddress] = st
	}

	if event.Slot <= st.lastAcceptedSlot {
		a.rejected.Add(1)
		return
	}

	st.lastAcceptedSlot = event.Slot
	st.ring[st.ringPos] = event.Slot
	st.ringPos = (st.ringPos + 1) % ringDepth

	a.queue = append(a.queue, event)
	a.accepted.Add(1)
}

// Drain removes and returns every currently queued event, in acceptance
// order, up to max events (0 means unbounded). It is the engine task's
// non-blocking equivalent of next_accepted(): a finite batch, not a
// channel, because the engine owns its own scan cadence.
func (a *Aggregator) Drain(max int) []models.PriceUpdateEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.queue) == 0 {
		return nil
	}
	if max <= 0 || max >= len(a.queue) {
		out := a.queue
		a.queue = nil
		return out
	}

	out := make([]models.PriceUpdateEvent, max)
	copy(out, a.queue[:max])
	a.queue = a.queue[max:]
	return out
}

// Pending returns the number of events currently queued.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Stats is a diagnostics snapshot exposed by internal/api.
type Stats struct {
	Accepted  int64
	Rejected  int64
	Malformed int64
	Tracked   int
}

// Stats returns current accept/reject/malformed counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	tracked := len(a.states)
	a.mu.Unlock()

	return Stats{
		Accepted:  a.accepted.Load(),
		Rejected:  a.rejected.Load(),
		Malformed: a.malformed.Load(),
		Tracked:   tracked,
	}
}

// LastAcceptedSlot reports the current high-water mark for a pool, for
// tests and diagnostics.
func (a *Aggregator) LastAcceptedSlot(pool models.PoolAddress) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[pool]
	if !ok {
		return 0, false
	}
	return st.lastAcceptedSlot, true
}
