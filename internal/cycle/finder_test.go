package cycle

import (
	"testing"

	"github.com/rawblock/arb-cycle-engine/internal/graph"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

func mint(b byte) models.TokenId {
	var t models.TokenId
	t[0] = b
	return t
}

func pool(b byte) models.PoolAddress {
	var p models.PoolAddress
	p[0] = b
	return p
}

func upsert(t *testing.T, g *graph.PoolGraph, poolID byte, from, to models.TokenId, rate float64, feeBps uint32, slot uint64) {
	t.Helper()
	if err := g.UpsertEdge(models.PriceUpdateEvent{
		PoolAddress:  pool(poolID),
		SourceMint:   from,
		TargetMint:   to,
		NewRate:      rate,
		NewFeeBps:    feeBps,
		NewLiquidity: 100_000,
		Slot:         slot,
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
}

// A -> B -> A round trip (2-hop) where the round trip rate exceeds 1 after
// fees, so a negative-weight cycle must be found.
func TestFindDetectsProfitableTwoHopCycle(t *testing.T) {
	g := graph.New()
	base := mint(1)
	other := mint(2)

	upsert(t, g, 1, base, other, 2.0, 10, 100)
	// Reciprocal would be 0.5; push it above that so the round trip nets > 1.
	upsert(t, g, 2, other, base, 0.6, 10, 100)

	cycles := Find(g, base, Params{MaxHops: 2})
	if len(cycles) == 0 {
		t.Fatalf("expected at least one profitable cycle, found none")
	}
	for _, c := range cycles {
		if c.Mints[0] != base || c.Mints[len(c.Mints)-1] != base {
			t.Fatalf("cycle does not start/end at base: %+v", c.Mints)
		}
		if c.TheoreticalProfitPct <= 0 {
			t.Fatalf("expected positive theoretical profit, got %f", c.TheoreticalProfitPct)
		}
	}
}

func TestFindReturnsEmptyWhenNoProfitableCycle(t *testing.T) {
	g := graph.New()
	base := mint(1)
	other := mint(2)

	// Perfectly balanced, fee-eroded round trip: never profitable.
	upsert(t, g, 1, base, other, 1.0, 30, 1)
	upsert(t, g, 2, other, base, 1.0, 30, 1)

	cycles := Find(g, base, Params{MaxHops: 3})
	if len(cycles) != 0 {
		t.Fatalf("expected no cycles, found %d", len(cycles))
	}
}

func TestFindReturnsEmptyFromIsolatedBase(t *testing.T) {
	g := graph.New()
	base := mint(9)
	cycles := Find(g, base, Params{})
	if cycles != nil {
		t.Fatalf("expected nil for base mint with no edges, got %+v", cycles)
	}
}

func TestFindExcludesStaleEdges(t *testing.T) {
	g := graph.New()
	base := mint(1)
	other := mint(2)

	upsert(t, g, 1, base, other, 2.0, 10, 100)
	upsert(t, g, 2, other, base, 0.6, 10, 100)
	g.MarkStale(pool(1))

	cycles := Find(g, base, Params{MaxHops: 2})
	if len(cycles) != 0 {
		t.Fatalf("expected stale edge to block the cycle, found %d", len(cycles))
	}
}

func TestFindForbidsReusingSamePoolAddress(t *testing.T) {
	g := graph.New()
	base := mint(1)
	other := mint(2)

	upsert(t, g, 1, base, other, 2.0, 0, 1)
	// Same pool_address as above must not be traversable a second time to
	// close the cycle; only the reciprocal edge of pool 1 exists (B->A),
	// which is the same physical pool and is therefore already "used".
	cycles := Find(g, base, Params{MaxHops: 4})
	if len(cycles) != 0 {
		t.Fatalf("expected no cycle since only one physical pool connects A and B, found %d", len(cycles))
	}
}

func TestFindRespectsOutputCap(t *testing.T) {
	g := graph.New()
	base := mint(1)

	// Build several independent 2-hop profitable cycles through distinct
	// intermediate mints so the cap, not the graph, limits the count.
	for i := byte(2); i < 12; i++ {
		upsert(t, g, i, base, mint(i), 2.0, 0, 1)
		upsert(t, g, i+50, mint(i), base, 0.6, 0, 1)
	}

	cycles := Find(g, base, Params{MaxHops: 2, OutputCap: 3})
	if len(cycles) != 3 {
		t.Fatalf("expected exactly 3 cycles under cap, got %d", len(cycles))
	}
}

func TestFindRespectsMaxSlotLag(t *testing.T) {
	g := graph.New()
	base := mint(1)
	other := mint(2)

	upsert(t, g, 1, base, other, 2.0, 10, 1) // stale slot
	upsert(t, g, 2, other, base, 0.6, 10, 100)

	cycles := Find(g, base, Params{MaxHops: 2, MaxSlotLag: 5, FreshestSlot: 100})
	if len(cycles) != 0 {
		t.Fatalf("expected leg older than freshest-lag window to be excluded, found %d", len(cycles))
	}
}
