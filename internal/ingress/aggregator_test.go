package ingress

import (
	"testing"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

func mkEvent(pool byte, slot uint64, arrival int64) models.PriceUpdateEvent {
	var p models.PoolAddress
	p[0] = pool
	var src, dst models.TokenId
	src[0] = 1
	dst[0] = 2
	return models.PriceUpdateEvent{
		PoolAddress:  p,
		SourceMint:   src,
		TargetMint:   dst,
		NewRate:      1.01,
		NewFeeBps:    30,
		NewLiquidity: 10_000,
		Slot:         slot,
		ArrivalNs:    arrival,
	}
}

func TestSubmitAcceptsStrictlyIncreasingSlots(t *testing.T) {
	agg := New()

	agg.Submit(mkEvent(1, 10, 100))
	agg.Submit(mkEvent(1, 11, 200))
	agg.Submit(mkEvent(1, 10, 50)) // stale, must be rejected

	stats := agg.Stats()
	if stats.Accepted != 2 {
		t.Fatalf("accepted = %d, want 2", stats.Accepted)
	}
	if stats.Rejected != 1 {
		t.Fatalf("rejected = %d, want 1", stats.Rejected)
	}

	slot, ok := agg.LastAcceptedSlot(mkEvent(1, 0, 0).PoolAddress)
	if !ok || slot != 11 {
		t.Fatalf("last accepted slot = %d, ok=%v, want 11", slot, ok)
	}
}

func TestSubmitDropsDuplicateSlotEvenWithBetterArrival(t *testing.T) {
	agg := New()

	agg.Submit(mkEvent(2, 5, 1000))
	agg.Submit(mkEvent(2, 5, 1)) // same slot, earlier arrival: still rejected

	stats := agg.Stats()
	if stats.Accepted != 1 || stats.Rejected != 1 {
		t.Fatalf("accepted=%d rejected=%d, want 1/1", stats.Accepted, stats.Rejected)
	}
}

func TestSubmitDropsMalformedEvents(t *testing.T) {
	agg := New()

	e := mkEvent(3, 1, 0)
	e.NewRate = -1
	agg.Submit(e)

	e2 := mkEvent(3, 2, 0)
	e2.SourceMint = e2.TargetMint
	agg.Submit(e2)

	stats := agg.Stats()
	if stats.Malformed != 2 {
		t.Fatalf("malformed = %d, want 2", stats.Malformed)
	}
	if stats.Accepted != 0 {
		t.Fatalf("accepted = %d, want 0", stats.Accepted)
	}
}

func TestDrainUnderFloodIsDedupedAndOrdered(t *testing.T) {
	agg := New()

	for slot := uint64(1); slot <= 50; slot++ {
		agg.Submit(mkEvent(4, slot, int64(slot)))
		agg.Submit(mkEvent(4, slot, int64(slot))) // flood: duplicate of the same slot
	}

	drained := agg.Drain(0)
	if len(drained) != 50 {
		t.Fatalf("drained %d events, want 50", len(drained))
	}
	for i, ev := range drained {
		want := uint64(i + 1)
		if ev.Slot != want {
			t.Fatalf("drained[%d].Slot = %d, want %d", i, ev.Slot, want)
		}
	}
	if agg.Pending() != 0 {
		t.Fatalf("pending after full drain = %d, want 0", agg.Pending())
	}
}

func TestDrainRespectsMaxAndLeavesRemainder(t *testing.T) {
	agg := New()
	for slot := uint64(1); slot <= 10; slot++ {
		agg.Submit(mkEvent(5, slot, 0))
	}

	first := agg.Drain(4)
	if len(first) != 4 {
		t.Fatalf("first drain len = %d, want 4", len(first))
	}
	if agg.Pending() != 6 {
		t.Fatalf("pending = %d, want 6", agg.Pending())
	}

	rest := agg.Drain(0)
	if len(rest) != 6 {
		t.Fatalf("rest drain len = %d, want 6", len(rest))
	}
}
