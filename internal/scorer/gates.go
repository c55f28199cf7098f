package scorer

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// ThroughputLimiter is a leaky-bucket limiter capping opportunity emissions
// per second, adapted from the same token-bucket shape used to rate-limit
// inbound API requests: a capacity that refills continuously and is spent
// one token per allowed emission.
type ThroughputLimiter struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewThroughputLimiter builds a limiter that allows perSecond emissions per
// second, bursting up to perSecond tokens.
func NewThroughputLimiter(perSecond int) *ThroughputLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &ThroughputLimiter{
		capacity:   float64(perSecond),
		tokens:     float64(perSecond),
		refillRate: float64(perSecond),
		lastRefill: time.Now(),
	}
}

// Allow reports whether an emission may proceed right now, consuming a
// token if so.
func (t *ThroughputLimiter) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(t.lastRefill).Seconds()
	t.lastRefill = now

	t.tokens += elapsed * t.refillRate
	if t.tokens > t.capacity {
		t.tokens = t.capacity
	}

	if t.tokens < 1 {
		return false
	}
	t.tokens--
	return true
}

// LatencyGate tracks a rolling average RTT against the upstream RPC and
// suppresses emission when that average exceeds killMs.
type LatencyGate struct {
	mu      sync.Mutex
	samples []time.Duration
	window  int
	killMs  int64
}

// NewLatencyGate builds a gate with the given rolling window size and kill
// threshold in milliseconds.
func NewLatencyGate(window int, killMs int64) *LatencyGate {
	if window <= 0 {
		window = 20
	}
	if killMs <= 0 {
		killMs = 500
	}
	return &LatencyGate{window: window, killMs: killMs}
}

// Observe records a fresh RTT probe.
func (g *LatencyGate) Observe(rtt time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.samples = append(g.samples, rtt)
	if len(g.samples) > g.window {
		g.samples = g.samples[len(g.samples)-g.window:]
	}
}

// Allow reports whether the rolling average RTT is within the kill
// threshold. An empty sample window passes open (nothing observed yet).
func (g *LatencyGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.samples) == 0 {
		return true
	}
	var total time.Duration
	for _, s := range g.samples {
		total += s
	}
	avgMs := (total / time.Duration(len(g.samples))).Milliseconds()
	return avgMs <= g.killMs
}

// GateInputs bundles the per-tick state the global gates consult.
type GateInputs struct {
	BaseMintBalance uint64
	BalanceFloor    uint64
}

// BalanceGate reports whether the Executor-reported balance clears the
// configured floor.
func BalanceGate(in GateInputs) bool {
	return in.BaseMintBalance > in.BalanceFloor
}

// TipToProfitGate enforces priority_tip_usd <= 0.5 * expected_net_profit_usd.
func TipToProfitGate(opp models.ValidatedOpportunity) bool {
	if opp.ExpectedNetProfitUSD.LessThanOrEqual(decimal.Zero) {
		return false
	}
	limit := opp.ExpectedNetProfitUSD.Mul(decimal.NewFromFloat(0.5))
	return opp.PriorityTipUSD.LessThanOrEqual(limit)
}
