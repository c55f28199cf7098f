// Package scorer implements the Scorer / Gate (C5): confidence scoring,
// GO/BORDERLINE/BLOCK classification, global emission gates, and the
// adaptive tip/slippage controllers that feed back into C4.
//
// The confidence fusion below is adapted from a dependency-group evidence
// model: independent pieces of evidence are averaged, but signals that can
// move together (the correlated group) are fused by taking their maximum
// rather than combined, so a cycle can't inflate its score by stacking
// restatements of the same underlying fact.
package scorer

import (
	"math"
	"sort"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

const (
	goThreshold         = 0.75
	borderlineThreshold = 0.55

	venueDiversityBonus = 0.05
)

// Evidence is the per-opportunity scoring input assembled by the engine
// task from the cycle, the current scan's freshness spread, and the
// per-pool success-rate tracker.
type Evidence struct {
	SlotFreshness     float64 // 1.0 for the freshest candidate this scan, scaled to 0.5 at MaxSlotLag
	LiquidityHeadroom float64 // logistic score around min_liquidity, in [0,1]
	AllVenuesDistinct bool
	HistoricalSuccess float64 // EWMA over the last 64 attempts, in [0,1]
}

// Confidence fuses the independent liquidity/history evidence with the
// slot-freshness and diversity signals, which correlate with each other
// (both derive from "how current is this quote"), by max-fusing the
// correlated pair instead of summing them.
func Confidence(e Evidence) float64 {
	correlatedGroup := e.SlotFreshness
	diversityScore := 0.0
	if e.AllVenuesDistinct {
		diversityScore = venueDiversityBonus
	}
	if diversityScore > correlatedGroup {
		correlatedGroup = diversityScore
	}

	independent := (e.LiquidityHeadroom + e.HistoricalSuccess) / 2

	score := 0.5*correlatedGroup + 0.5*independent
	if e.AllVenuesDistinct {
		score += venueDiversityBonus
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Classify maps a confidence value onto the GO/BORDERLINE/BLOCK scale.
func Classify(confidence float64) models.ScoreClass {
	switch {
	case confidence >= goThreshold:
		return models.ScoreGo
	case confidence >= borderlineThreshold:
		return models.ScoreBorderline
	default:
		return models.ScoreBlock
	}
}

// SlotFreshnessScore linearly scales 1.0 (freshest this scan) down to 0.5
// at maxSlotLag, matching the spec's stated curve.
func SlotFreshnessScore(sourceSlot, freshestSlot, maxSlotLag uint64) float64 {
	if sourceSlot >= freshestSlot {
		return 1.0
	}
	age := freshestSlot - sourceSlot
	if maxSlotLag == 0 {
		return 0.5
	}
	frac := float64(age) / float64(maxSlotLag)
	if frac > 1 {
		frac = 1
	}
	return 1.0 - 0.5*frac
}

// LiquidityHeadroomScore is a logistic curve centered on minLiquidityFloor:
// 0.5 at the floor, approaching 1 well above it and 0 well below it.
func LiquidityHeadroomScore(minLiquidity, minLiquidityFloor uint64) float64 {
	if minLiquidityFloor == 0 {
		return 1
	}
	x := float64(minLiquidity) / float64(minLiquidityFloor)
	// Logistic centered at x=1 with a moderate slope.
	const k = 4.0
	return 1 / (1 + math.Exp(-k*(x-1)))
}

// candidateScore bundles a ValidatedOpportunity with pool-set membership
// for conflict resolution. origIndex points back into the caller's slice
// so the winner/loser decision can be applied in place.
type candidateScore struct {
	origIndex int
	confidence float64
	pools      map[models.PoolAddress]bool
}

// ResolveConflicts walks GO-classed opportunities in descending confidence
// order, keeping each one whose pool set does not intersect that of an
// already-kept candidate and demoting the rest to BORDERLINE. A candidate
// that only intersects a demoted one stays GO. Input order is not assumed
// to be confidence-sorted; ties
// are broken by input order (first wins), matching C3's "discovery order"
// tie-break convention upstream.
func ResolveConflicts(opportunities []models.ValidatedOpportunity) []models.ValidatedOpportunity {
	out := make([]models.ValidatedOpportunity, len(opportunities))
	copy(out, opportunities)

	candidates := make([]candidateScore, 0, len(out))
	for i := range out {
		if out[i].ScoreClass != models.ScoreGo {
			continue
		}
		pools := make(map[models.PoolAddress]bool, len(out[i].Cycle.PoolAddresses))
		for _, p := range out[i].Cycle.PoolAddresses {
			pools[p] = true
		}
		candidates = append(candidates, candidateScore{origIndex: i, confidence: out[i].Confidence, pools: pools})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})

	claimed := make(map[models.PoolAddress]bool)

	for _, cand := range candidates {
		conflict := false
		for pool := range cand.pools {
			if claimed[pool] {
				conflict = true
				break
			}
		}
		if conflict {
			out[cand.origIndex].ScoreClass = models.ScoreBorderline
			continue
		}
		for pool := range cand.pools {
			claimed[pool] = true
		}
	}

	return out
}
