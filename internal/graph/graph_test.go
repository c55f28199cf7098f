package graph

import (
	"math"
	"testing"

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

func TestUpsertEdgeCreatesReciprocalPair(t *testing.T) {
	g := New()

	err := g.UpsertEdge(models.PriceUpdateEvent{
		PoolAddress:  pool(1),
		SourceMint:   mint(1),
		TargetMint:   mint(2),
		NewRate:      2.0,
		NewFeeBps:    30,
		NewLiquidity: 50_000,
		Slot:         100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.NodeCount() != 2 {
		t.Fatalf("node count = %d, want 2", g.NodeCount())
	}
	if g.PoolCount() != 1 {
		t.Fatalf("pool count = %d, want 1", g.PoolCount())
	}

	fwd := g.Outbound(mint(1))
	if len(fwd) != 1 || fwd[0].ExchangeRate != 2.0 {
		t.Fatalf("forward edge wrong: %+v", fwd)
	}
	back := g.Outbound(mint(2))
	if len(back) != 1 || math.Abs(back[0].ExchangeRate-0.5) > 1e-12 {
		t.Fatalf("backward edge wrong: %+v", back)
	}

	wantWeight := -math.Log(2.0 * (1 - 30.0/10_000))
	if math.Abs(fwd[0].Weight-wantWeight) > 1e-9 {
		t.Fatalf("weight = %f, want %f", fwd[0].Weight, wantWeight)
	}
}

func TestUpsertEdgeRejectsSlotRegression(t *testing.T) {
	g := New()
	base := models.PriceUpdateEvent{
		PoolAddress: pool(2), SourceMint: mint(1), TargetMint: mint(2),
		NewRate: 1.0, NewFeeBps: 10, NewLiquidity: 1000, Slot: 50,
	}
	if err := g.UpsertEdge(base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	regressed := base
	regressed.Slot = 49
	err := g.UpsertEdge(regressed)
	if err == nil {
		t.Fatalf("expected invariant error on slot regression")
	}
}

func TestUpsertEdgeRejectsNonPositiveRate(t *testing.T) {
	g := New()
	err := g.UpsertEdge(models.PriceUpdateEvent{
		PoolAddress: pool(3), SourceMint: mint(1), TargetMint: mint(2),
		NewRate: 0, NewFeeBps: 10, NewLiquidity: 1000, Slot: 1,
	})
	if err == nil {
		t.Fatalf("expected invariant error on non-positive rate")
	}
}

func TestMarkStaleAffectsBothSides(t *testing.T) {
	g := New()
	g.UpsertEdge(models.PriceUpdateEvent{
		PoolAddress: pool(4), SourceMint: mint(1), TargetMint: mint(2),
		NewRate: 1.5, NewFeeBps: 0, NewLiquidity: 5000, Slot: 1,
	})
	g.MarkStale(pool(4))

	fwd := g.Outbound(mint(1))
	back := g.Outbound(mint(2))
	if !fwd[0].Stale || !back[0].Stale {
		t.Fatalf("expected both sides stale: fwd=%v back=%v", fwd[0].Stale, back[0].Stale)
	}
}

func TestLowLiquidityMarksStaleAutomatically(t *testing.T) {
	g := New()
	g.UpsertEdge(models.PriceUpdateEvent{
		PoolAddress: pool(5), SourceMint: mint(1), TargetMint: mint(2),
		NewRate: 1.1, NewFeeBps: 10, NewLiquidity: StaleLiquidityFloor - 1, Slot: 1,
	})
	fwd := g.Outbound(mint(1))
	if !fwd[0].Stale {
		t.Fatalf("expected edge below liquidity floor to be marked stale")
	}
}

func TestCheckInvariantsPassesAfterMutations(t *testing.T) {
	g := New()
	for i := byte(1); i <= 5; i++ {
		g.UpsertEdge(models.PriceUpdateEvent{
			PoolAddress: pool(i), SourceMint: mint(i), TargetMint: mint(i + 1),
			NewRate: 1.0 + float64(i)*0.01, NewFeeBps: uint32(i) * 5, NewLiquidity: 10_000, Slot: uint64(i),
		})
	}
	if err := g.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	g := New()
	g.UpsertEdge(models.PriceUpdateEvent{
		PoolAddress: pool(9), SourceMint: mint(1), TargetMint: mint(2),
		NewRate: 3.0, NewFeeBps: 25, NewLiquidity: 20_000, Slot: 7,
	})

	snap := g.Snapshot()

	g2 := New()
	g2.Restore(snap)

	if g2.NodeCount() != g.NodeCount() {
		t.Fatalf("restored node count = %d, want %d", g2.NodeCount(), g.NodeCount())
	}
	if g2.PoolCount() != g.PoolCount() {
		t.Fatalf("restored pool count = %d, want %d", g2.PoolCount(), g.PoolCount())
	}
	restored := g2.Outbound(mint(1))
	if len(restored) != 1 || !restored[0].Stale {
		t.Fatalf("restored edge should exist but be marked stale pending a fresh event: %+v", restored)
	}
}
