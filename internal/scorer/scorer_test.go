package scorer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

func TestClassifyThresholds(t *testing.T) {
	cases := []struct {
		confidence float64
		want       models.ScoreClass
	}{
		{0.9, models.ScoreGo},
		{0.75, models.ScoreGo},
		{0.6, models.ScoreBorderline},
		{0.55, models.ScoreBorderline},
		{0.3, models.ScoreBlock},
	}
	for _, c := range cases {
		if got := Classify(c.confidence); got != c.want {
			t.Errorf("Classify(%f) = %v, want %v", c.confidence, got, c.want)
		}
	}
}

func TestConfidenceRewardsVenueDiversity(t *testing.T) {
	base := Evidence{SlotFreshness: 0.8, LiquidityHeadroom: 0.8, HistoricalSuccess: 0.8}
	diverse := base
	diverse.AllVenuesDistinct = true

	if Confidence(diverse) <= Confidence(base) {
		t.Fatalf("expected venue diversity to strictly increase confidence")
	}
}

func TestSlotFreshnessScoreScalesLinearly(t *testing.T) {
	if got := SlotFreshnessScore(100, 100, 5); got != 1.0 {
		t.Fatalf("freshest slot should score 1.0, got %f", got)
	}
	got := SlotFreshnessScore(95, 100, 5)
	if got != 0.5 {
		t.Fatalf("slot at max lag should score 0.5, got %f", got)
	}
}

func TestResolveConflictsKeepsHighestConfidenceAmongIntersecting(t *testing.T) {
	var poolA, poolB, poolC models.PoolAddress
	poolA[0], poolB[0], poolC[0] = 1, 2, 3

	high := models.ValidatedOpportunity{
		Cycle:      models.Cycle{PoolAddresses: []models.PoolAddress{poolA, poolB}},
		Confidence: 0.9,
		ScoreClass: models.ScoreGo,
	}
	low := models.ValidatedOpportunity{
		Cycle:      models.Cycle{PoolAddresses: []models.PoolAddress{poolB, poolC}},
		Confidence: 0.8,
		ScoreClass: models.ScoreGo,
	}
	disjoint := models.ValidatedOpportunity{
		Cycle:      models.Cycle{PoolAddresses: []models.PoolAddress{poolC}},
		Confidence: 0.76,
		ScoreClass: models.ScoreGo,
	}

	out := ResolveConflicts([]models.ValidatedOpportunity{low, high, disjoint})

	byConfidence := map[float64]models.ScoreClass{}
	for _, o := range out {
		byConfidence[o.Confidence] = o.ScoreClass
	}

	if byConfidence[0.9] != models.ScoreGo {
		t.Fatalf("highest-confidence intersecting candidate should remain GO")
	}
	if byConfidence[0.8] != models.ScoreBorderline {
		t.Fatalf("lower-confidence intersecting candidate should be demoted to BORDERLINE")
	}
	if byConfidence[0.76] != models.ScoreGo {
		t.Fatalf("disjoint candidate sharing no pools with the winner (only the loser) should remain GO, got %v", byConfidence[0.76])
	}
}

func TestThroughputLimiterCapsBurstRate(t *testing.T) {
	lim := NewThroughputLimiter(2)
	if !lim.Allow() {
		t.Fatalf("first emission should be allowed")
	}
	if !lim.Allow() {
		t.Fatalf("second emission should be allowed (burst of 2)")
	}
	if lim.Allow() {
		t.Fatalf("third immediate emission should be throttled")
	}
}

func TestLatencyGateSuppressesOnHighRollingAverage(t *testing.T) {
	gate := NewLatencyGate(3, 100)
	gate.Observe(50 * time.Millisecond)
	gate.Observe(50 * time.Millisecond)
	if !gate.Allow() {
		t.Fatalf("expected gate open under threshold")
	}
	gate.Observe(500 * time.Millisecond)
	if gate.Allow() {
		t.Fatalf("expected gate closed once rolling average exceeds threshold")
	}
}

func TestBalanceGate(t *testing.T) {
	if !BalanceGate(GateInputs{BaseMintBalance: 100, BalanceFloor: 50}) {
		t.Fatalf("expected balance above floor to pass")
	}
	if BalanceGate(GateInputs{BaseMintBalance: 40, BalanceFloor: 50}) {
		t.Fatalf("expected balance below floor to fail")
	}
}

func TestTipToProfitGate(t *testing.T) {
	opp := models.ValidatedOpportunity{
		ExpectedNetProfitUSD: decimal.NewFromFloat(10),
		PriorityTipUSD:       decimal.NewFromFloat(4),
	}
	if !TipToProfitGate(opp) {
		t.Fatalf("tip at 40%% of profit should pass the 50%% gate")
	}
	opp.PriorityTipUSD = decimal.NewFromFloat(6)
	if TipToProfitGate(opp) {
		t.Fatalf("tip at 60%% of profit should fail the 50%% gate")
	}
}

func TestTipControllerSelectsTierByLag(t *testing.T) {
	tc := NewTipController(decimal.NewFromFloat(1), decimal.NewFromFloat(100), nil, 1)

	tc.ObserveLag(50)
	if !tc.CurrentTip().Equal(decimal.NewFromFloat(1)) {
		t.Fatalf("expected base tip at low lag, got %s", tc.CurrentTip().String())
	}

	tc.ObserveLag(2000)
	if !tc.CurrentTip().Equal(decimal.NewFromFloat(5)) {
		t.Fatalf("expected 5x tip at extreme lag, got %s", tc.CurrentTip().String())
	}
}

func TestTipControllerRespectsCap(t *testing.T) {
	tc := NewTipController(decimal.NewFromFloat(10), decimal.NewFromFloat(12), nil, 1)
	tc.ObserveLag(2000) // would be 5x = 50, capped at 12
	if !tc.CurrentTip().Equal(decimal.NewFromFloat(12)) {
		t.Fatalf("expected tip capped at 12, got %s", tc.CurrentTip().String())
	}
}

func TestTipControllerUsesMeanLagOverWindow(t *testing.T) {
	tc := NewTipController(decimal.NewFromFloat(1), decimal.NewFromFloat(100), nil, 3)

	tc.ObserveLag(50)
	tc.ObserveLag(50)
	if !tc.CurrentTip().Equal(decimal.NewFromFloat(1)) {
		t.Fatalf("tip should not move before the window fills, got %s", tc.CurrentTip().String())
	}

	tc.ObserveLag(2050) // mean of (50, 50, 2050) = 716ms, in the 500-1000ms tier
	if !tc.CurrentTip().Equal(decimal.NewFromFloat(3)) {
		t.Fatalf("expected 3x tip once the windowed mean crosses into the 500-1000ms tier, got %s", tc.CurrentTip().String())
	}
}

func TestBuildTipTiersTreatsFourthBoundaryAsUnboundedCatchAll(t *testing.T) {
	tiers := BuildTipTiers([4]int64{100, 500, 1000, 0})
	if tiers[3].LagLessThanMs != -1 {
		t.Fatalf("expected the fourth tier to be the unbounded catch-all, got %d", tiers[3].LagLessThanMs)
	}
	if tiers[0].LagLessThanMs != 100 || tiers[1].LagLessThanMs != 500 || tiers[2].LagLessThanMs != 1000 {
		t.Fatalf("expected the first three boundaries to pass through unchanged, got %+v", tiers)
	}
}

func TestSlippageControllerWidensOnHighDrift(t *testing.T) {
	sc := NewSlippageController(200, 100, 800, 50, 3)
	for i := 0; i < 3; i++ {
		sc.RecordDrift(0.02) // 2% drift, above the 1.5% widen threshold
	}
	if got := sc.ToleranceBp(); got != 250 {
		t.Fatalf("expected tolerance widened to 250bp, got %d", got)
	}
}

func TestSlippageControllerNarrowsOnLowDrift(t *testing.T) {
	sc := NewSlippageController(200, 100, 800, 50, 3)
	for i := 0; i < 3; i++ {
		sc.RecordDrift(0.001)
	}
	if got := sc.ToleranceBp(); got != 175 {
		t.Fatalf("expected tolerance narrowed to 175bp, got %d", got)
	}
}
