package scorer

import (
	"sync"

	"github.com/shopspring/decimal"
)

// TipTier is a lag bucket boundary in milliseconds paired with a tip
// multiplier.
type TipTier struct {
	LagLessThanMs int64
	Multiplier    float64
}

var defaultTipTiers = []TipTier{
	{LagLessThanMs: 100, Multiplier: 1},
	{LagLessThanMs: 500, Multiplier: 2},
	{LagLessThanMs: 1000, Multiplier: 3},
	{LagLessThanMs: -1, Multiplier: 5}, // -1: catch-all, lag >= 1000ms
}

// BuildTipTiers pairs configured lag boundaries with the controller's fixed
// tip multipliers (1x, 2x, 3x, 5x). Configuration only carries the three
// meaningful boundaries; the fourth slot is always the unbounded catch-all
// regardless of what value it was loaded with.
func BuildTipTiers(lagBoundariesMs [4]int64) []TipTier {
	multipliers := [4]float64{1, 2, 3, 5}
	tiers := make([]TipTier, 4)
	for i := range tiers {
		boundary := lagBoundariesMs[i]
		if i == len(tiers)-1 {
			boundary = -1
		}
		tiers[i] = TipTier{LagLessThanMs: boundary, Multiplier: multipliers[i]}
	}
	return tiers
}

// TipController owns the priority-tip level fed to C4, adjusted every
// windowSize execution-lag feedback samples reported by C6.
type TipController struct {
	mu         sync.Mutex
	base       decimal.Decimal
	cap        decimal.Decimal
	tiers      []TipTier
	windowSize int
	lagSamples []int64
	meanLagMs  int64
}

// NewTipController builds a controller with the configured base tip, cap,
// and lag tiers. A nil/empty tiers slice falls back to the four default
// congestion bands; windowSize <= 0 falls back to 5 samples.
func NewTipController(base, cap decimal.Decimal, tiers []TipTier, windowSize int) *TipController {
	if len(tiers) == 0 {
		tiers = defaultTipTiers
	}
	if windowSize <= 0 {
		windowSize = 5
	}
	return &TipController{base: base, cap: cap, tiers: tiers, windowSize: windowSize}
}

// ObserveLag buffers the latest execution lag sample; once windowSize
// samples have accumulated it recomputes the mean lag CurrentTip selects
// its tier from and resets the buffer, mirroring SlippageController's
// windowed-mean update.
func (c *TipController) ObserveLag(lagMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lagSamples = append(c.lagSamples, lagMs)
	if len(c.lagSamples) < c.windowSize {
		return
	}

	var sum int64
	for _, l := range c.lagSamples {
		sum += l
	}
	c.meanLagMs = sum / int64(len(c.lagSamples))
	c.lagSamples = c.lagSamples[:0]
}

// CurrentTip returns the priority tip C4 should use for the next scan,
// selected by the tier matching the most recently computed windowed mean
// lag.
func (c *TipController) CurrentTip() decimal.Decimal {
	c.mu.Lock()
	lag := c.meanLagMs
	c.mu.Unlock()

	multiplier := 1.0
	for _, tier := range c.tiers {
		if tier.LagLessThanMs < 0 || lag < tier.LagLessThanMs {
			multiplier = tier.Multiplier
			break
		}
	}

	tip := c.base.Mul(decimal.NewFromFloat(multiplier))
	if tip.GreaterThan(c.cap) {
		return c.cap
	}
	return tip
}

// SlippageController owns the per-venue slippage tolerance, widened or
// narrowed every N feedback samples based on mean realized drift between
// expected and realized output.
type SlippageController struct {
	mu          sync.Mutex
	toleranceBp int64
	minBp       int64
	maxBp       int64
	stepBp      int64
	windowSize  int
	drifts      []float64 // fractional drift, e.g. 0.015 == 1.5%
}

// NewSlippageController builds a controller seeded at the configured
// starting tolerance (defaults applied by the caller via config).
func NewSlippageController(startBp, minBp, maxBp, stepBp int64, windowSize int) *SlippageController {
	if windowSize <= 0 {
		windowSize = 5
	}
	return &SlippageController{
		toleranceBp: startBp,
		minBp:       minBp,
		maxBp:       maxBp,
		stepBp:      stepBp,
		windowSize:  windowSize,
	}
}

// RecordDrift appends a realized-drift sample; every windowSize samples it
// recomputes the tolerance: widen by stepBp (capped at maxBp) if the mean
// absolute drift exceeds 1.5%, narrow by stepBp/2 (floored at minBp) if it
// is under 0.5%.
func (s *SlippageController) RecordDrift(drift float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drifts = append(s.drifts, drift)
	if len(s.drifts) < s.windowSize {
		return
	}

	var sum float64
	for _, d := range s.drifts {
		if d < 0 {
			d = -d
		}
		sum += d
	}
	mean := sum / float64(len(s.drifts))
	s.drifts = s.drifts[:0]

	switch {
	case mean > 0.015:
		s.toleranceBp += s.stepBp
		if s.toleranceBp > s.maxBp {
			s.toleranceBp = s.maxBp
		}
	case mean < 0.005:
		s.toleranceBp -= s.stepBp / 2
		if s.toleranceBp < s.minBp {
			s.toleranceBp = s.minBp
		}
	}
}

// ToleranceBp returns the current per-venue slippage tolerance in basis
// points.
func (s *SlippageController) ToleranceBp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toleranceBp
}
