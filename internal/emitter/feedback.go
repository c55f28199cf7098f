package emitter

import (
	"sync"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// poolHistoryDepth matches the spec's "EWMA over last 64 attempts" framing;
// the EWMA itself needs no fixed-size buffer, but the depth informs the
// smoothing constant below.
const poolHistoryDepth = 64

// ewmaAlpha is the smoothing constant for a window of poolHistoryDepth
// samples: alpha = 2/(N+1), the standard EWMA-to-SMA equivalence.
const ewmaAlpha = 2.0 / (poolHistoryDepth + 1)

type poolStats struct {
	successRate float64 // EWMA in [0,1]
	initialized bool
}

// Tracker accumulates per-pool success-rate EWMAs and the global failure-rate
// estimator, and forwards execution-lag and realized-drift samples to
// internal/scorer's adaptive controllers. It implements FeedbackSink.
type Tracker struct {
	mu sync.Mutex

	pools map[models.PoolAddress]*poolStats

	failureSamples int
	failureCount   int

	tip      tipObserver
	slippage slippageObserver
}

type tipObserver interface {
	ObserveLag(lagMs int64)
}

type slippageObserver interface {
	RecordDrift(drift float64)
}

// NewTracker builds an empty Tracker. tip and slippage may be nil if the
// caller doesn't want this tracker driving those controllers directly.
func NewTracker(tip tipObserver, slippage slippageObserver) *Tracker {
	return &Tracker{
		pools:    make(map[models.PoolAddress]*poolStats),
		tip:      tip,
		slippage: slippage,
	}
}

// RecordOutcome updates every per-pool and global statistic implied by one
// ExecutionResult.
func (t *Tracker) RecordOutcome(opportunity models.ValidatedOpportunity, result models.ExecutionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcome := 0.0
	if result.Success {
		outcome = 1.0
	}
	for _, pool := range opportunity.Cycle.PoolAddresses {
		st, ok := t.pools[pool]
		if !ok {
			st = &poolStats{}
			t.pools[pool] = st
		}
		if !st.initialized {
			st.successRate = outcome
			st.initialized = true
			continue
		}
		st.successRate = ewmaAlpha*outcome + (1-ewmaAlpha)*st.successRate
	}

	t.failureSamples++
	if !result.Success {
		t.failureCount++
	}

	if t.tip != nil {
		t.tip.ObserveLag(int64(result.ExecutionLagMs))
	}

	if t.slippage != nil && result.HasRealizedOut && opportunity.ExpectedOutput > 0 {
		drift := float64(int64(result.RealizedOutput)-int64(opportunity.ExpectedOutput)) / float64(opportunity.ExpectedOutput)
		t.slippage.RecordDrift(drift)
	}
}

// SuccessRate returns the current EWMA success rate for a pool, defaulting
// to 0.5 (neutral prior) for a pool with no recorded attempts.
func (t *Tracker) SuccessRate(pool models.PoolAddress) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.pools[pool]
	if !ok || !st.initialized {
		return 0.5
	}
	return st.successRate
}

// FailureRate returns the observed fraction of failed submissions across
// all pools, defaulting to 0.05 before any samples have been recorded.
func (t *Tracker) FailureRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failureSamples == 0 {
		return 0.05
	}
	return float64(t.failureCount) / float64(t.failureSamples)
}
