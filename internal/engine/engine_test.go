package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/internal/emitter"
	"github.com/rawblock/arb-cycle-engine/internal/scorer"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

func testCycle(pools ...models.PoolAddress) models.Cycle {
	return models.Cycle{PoolAddresses: pools}
}

func TestEngine_VenuesDistinct(t *testing.T) {
	e := &Engine{quotes: newQuoteCache()}

	poolA := models.PoolAddress{1}
	poolB := models.PoolAddress{2}
	poolC := models.PoolAddress{3}

	e.quotes.update(models.PriceUpdateEvent{PoolAddress: poolA, Venue: models.VenueAMMConstantProduct, NewRate: 1, NewLiquidity: 100})
	e.quotes.update(models.PriceUpdateEvent{PoolAddress: poolB, Venue: models.VenueCLMM, NewRate: 1, NewLiquidity: 100})
	e.quotes.update(models.PriceUpdateEvent{PoolAddress: poolC, Venue: models.VenueAMMConstantProduct, NewRate: 1, NewLiquidity: 100})

	if !e.venuesDistinct(testCycle(poolA, poolB)) {
		t.Errorf("venuesDistinct(A,B) = false, want true: distinct venues")
	}
	if e.venuesDistinct(testCycle(poolA, poolC)) {
		t.Errorf("venuesDistinct(A,C) = true, want false: both AMM_CONSTANT_PRODUCT")
	}

	unknown := models.PoolAddress{9}
	if e.venuesDistinct(testCycle(poolA, unknown)) {
		t.Errorf("venuesDistinct with an un-quoted pool = true, want false")
	}
}

func TestEngine_MeanPoolSuccess(t *testing.T) {
	tipCtl := scorer.NewTipController(decimal.Zero, decimal.Zero, nil, 1)
	slipCtl := scorer.NewSlippageController(100, 100, 800, 50, 5)
	tracker := emitter.NewTracker(tipCtl, slipCtl)

	e := &Engine{tracker: tracker}

	if got := e.meanPoolSuccess(testCycle()); got != 0.5 {
		t.Errorf("meanPoolSuccess(empty cycle) = %v, want 0.5", got)
	}

	poolA := models.PoolAddress{1}
	poolB := models.PoolAddress{2}

	got := e.meanPoolSuccess(testCycle(poolA, poolB))
	if got != 0.5 {
		t.Errorf("meanPoolSuccess(unseen pools) = %v, want 0.5 (neutral default)", got)
	}
}
