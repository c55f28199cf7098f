// Package engine owns the Pool Graph and runs the single-threaded tick
// loop: drain ingress, snapshot, run C3->C4->C5 as pure CPU-bound reads,
// hand selected opportunities to C6, collect completed submissions
// without blocking, sleep until the next tick.
package engine

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/internal/config"
	"github.com/rawblock/arb-cycle-engine/internal/cycle"
	"github.com/rawblock/arb-cycle-engine/internal/emitter"
	"github.com/rawblock/arb-cycle-engine/internal/graph"
	"github.com/rawblock/arb-cycle-engine/internal/ingress"
	"github.com/rawblock/arb-cycle-engine/internal/scorer"
	"github.com/rawblock/arb-cycle-engine/internal/validator"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// drainBatchMax bounds how many ingress events a single tick applies to
// the graph.
const drainBatchMax = 4096

// BaseMintUSDOracle resolves the base mint's USD price at a given slot.
// The engine takes this as an injected dependency rather than owning any
// price-oracle logic itself — USD conversion authority is a
// deployment-specific choice external to the core.
type BaseMintUSDOracle func(slot uint64) (decimal.Decimal, error)

// BalanceSource reports the Executor's currently known base-mint balance,
// consulted by the balance gate every tick.
type BalanceSource func() uint64

// RTTProbe reports the most recent round-trip time against the upstream
// RPC, fed into the latency gate. A nil probe leaves the gate open.
type RTTProbe func() time.Duration

// Stats is a point-in-time diagnostics snapshot, safe to read from other
// goroutines (the HTTP API) without touching engine-owned state directly —
// readers outside the engine task must snapshot by message, not by
// pointer.
type Stats struct {
	TickCount             int64
	LastTickAt            time.Time
	LastTickDurationUs    int64
	CyclesFound           int64
	OpportunitiesAccepted int64
	OpportunitiesEmitted  int64
	GraphPoolCount        int
	GraphNodeCount        int
	TipUSD                decimal.Decimal
	SlippageToleranceBp   int64
	FailureRate           float64
	IngressStats          ingress.Stats
}

// Engine is the single-threaded engine task: it exclusively owns and
// mutates the PoolGraph; every other component only borrows reads within
// a tick.
type Engine struct {
	cfg *config.Config

	graph   *graph.PoolGraph
	ingress *ingress.Aggregator
	quotes  *quoteCache

	tipCtl   *scorer.TipController
	slipCtl  *scorer.SlippageController
	tracker  *emitter.Tracker
	limiter  *scorer.ThroughputLimiter
	latency  *scorer.LatencyGate
	emit     *emitter.Emitter

	oracle        BaseMintUSDOracle
	balanceSource BalanceSource
	rttProbe      RTTProbe

	freshestSlot atomic.Uint64
	stats        atomic.Pointer[Stats]
	tickCount    atomic.Int64
}

// New wires the six components into one engine task. The caller supplies
// the Executor implementation (cmd/engine passes emitter.NopExecutor); New
// wraps it in an emitter.Emitter that reports to the feedback tracker.
// broadcast, if non-nil, is invoked once per emitted opportunity so an
// external notification surface (the websocket hub) stays a pure observer
// of C6's output without the engine importing that surface directly.
func New(cfg *config.Config, g *graph.PoolGraph, agg *ingress.Aggregator, executor emitter.Executor, oracle BaseMintUSDOracle, balanceSource BalanceSource, rttProbe RTTProbe, broadcast emitter.Broadcaster) *Engine {
	tipCtl := scorer.NewTipController(cfg.PriorityTip.Base, cfg.PriorityTip.Cap, scorer.BuildTipTiers(cfg.PriorityTip.LagTiers), cfg.PriorityTip.WindowSize)
	slipCtl := scorer.NewSlippageController(cfg.Slippage.MinBps, cfg.Slippage.MinBps, cfg.Slippage.MaxBps, cfg.Slippage.AdjustStepBp, cfg.Slippage.WindowSize)
	tracker := emitter.NewTracker(tipCtl, slipCtl)

	emitMode := emitter.EmitLive
	if cfg.EmitMode == config.EmitDryRun {
		emitMode = emitter.EmitDryRun
	}

	e := &Engine{
		cfg:           cfg,
		graph:         g,
		ingress:       agg,
		quotes:        newQuoteCache(),
		tipCtl:        tipCtl,
		slipCtl:       slipCtl,
		tracker:       tracker,
		limiter:       scorer.NewThroughputLimiter(cfg.ThroughputPerSec),
		latency:       scorer.NewLatencyGate(20, cfg.LatencyKillMs),
		emit:          emitter.New(executor, tracker, emitMode, 256, broadcast),
		oracle:        oracle,
		balanceSource: balanceSource,
		rttProbe:      rttProbe,
	}
	e.stats.Store(&Stats{})
	return e
}

// Graph exposes the owned PoolGraph read-only view for the ingress drain
// path and for persistence snapshots; it is never handed to concurrent
// mutators.
func (e *Engine) Graph() *graph.PoolGraph { return e.graph }

// Stats returns the most recent tick's diagnostics snapshot.
func (e *Engine) Stats() Stats {
	return *e.stats.Load()
}

// Run drives the tick loop until ctx is cancelled, then performs the
// graceful-shutdown sequence: stop accepting new ticks, drain outstanding
// submissions up to the configured grace period, and return.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.ScanInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[Engine] tick loop starting, interval=%s max_hops=%d emit_mode=%s", interval, e.cfg.MaxHops, e.cfg.EmitMode)

	for {
		select {
		case <-ctx.Done():
			e.drainShutdown()
			return nil
		case <-ticker.C:
			if err := e.tick(); err != nil {
				return err
			}
		}
	}
}

// drainShutdown collects completed submissions for up to the configured
// grace period instead of awaiting them synchronously; per-opportunity
// Executor calls carry their own timeouts and cancellation is advisory.
func (e *Engine) drainShutdown() {
	grace := time.Duration(e.cfg.ShutdownGraceMs) * time.Millisecond
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if n := e.emit.Collect(); n == 0 {
			time.Sleep(50 * time.Millisecond)
		}
	}
	log.Println("[Engine] shutdown drain complete")
}

// tick executes one full iteration of the loop. Steps 3-4 (C3 through C5's
// selection) are pure CPU-bound reads of the graph snapshot and perform no
// I/O; step 1 drains ingress, step 4 launches detached submission
// goroutines without awaiting them, and step 5 is a non-blocking collect.
func (e *Engine) tick() error {
	start := time.Now()

	if err := e.drainIngress(); err != nil {
		return err
	}

	cycles := cycle.Find(e.graph, e.cfg.BaseMint, cycle.Params{
		MaxHops:      e.cfg.MaxHops,
		MaxSlotLag:   e.cfg.MaxSlotLag,
		FreshestSlot: e.freshestSlot.Load(),
		OutputCap:    e.cfg.CyclesPerScanCap,
	})

	opportunities := e.validateAndScore(cycles)
	opportunities = scorer.ResolveConflicts(opportunities)

	emitted := e.selectAndEmit(opportunities)

	collected := e.emit.Collect()
	_ = collected

	e.publishStats(Stats{
		TickCount:             e.tickCount.Add(1),
		LastTickAt:            start,
		LastTickDurationUs:    time.Since(start).Microseconds(),
		CyclesFound:           int64(len(cycles)),
		OpportunitiesAccepted: int64(len(opportunities)),
		OpportunitiesEmitted:  int64(emitted),
		GraphPoolCount:        e.graph.PoolCount(),
		GraphNodeCount:        e.graph.NodeCount(),
		TipUSD:                e.tipCtl.CurrentTip(),
		SlippageToleranceBp:   e.slipCtl.ToleranceBp(),
		FailureRate:           e.tracker.FailureRate(),
		IngressStats:          e.ingress.Stats(),
	})

	return nil
}

// drainIngress is the only point in the loop at which the graph mutates.
// An InvariantViolation here is fatal (exit code 70 at the process
// boundary).
func (e *Engine) drainIngress() error {
	events := e.ingress.Drain(drainBatchMax)
	for _, event := range events {
		if err := e.graph.UpsertEdge(event); err != nil {
			if invErr, ok := err.(*graph.InvariantError); ok {
				log.Printf("[Engine] FATAL invariant %d violated: %s", invErr.Invariant, invErr.Detail)
				return invErr
			}
			continue
		}
		e.quotes.update(event)
		if event.Slot > e.freshestSlot.Load() {
			e.freshestSlot.Store(event.Slot)
		}
	}
	return nil
}

// validateAndScore runs C4's sizing and C5's confidence assignment: a pure
// function of the graph/quote-cache snapshot, no suspension points.
func (e *Engine) validateAndScore(cycles []models.Cycle) []models.ValidatedOpportunity {
	freshest := e.freshestSlot.Load()
	out := make([]models.ValidatedOpportunity, 0, len(cycles))

	for _, c := range cycles {
		usdPrice, decimals := e.baseMintQuote(c.SourceSlot)

		cost := validator.CostModel{
			PriorityTipUSD:   e.tipCtl.CurrentTip(),
			FailureRate:      e.tracker.FailureRate(),
			BaseMintUSDPrice: usdPrice,
			BaseMintDecimals: decimals,
		}
		params := validator.Params{
			InputMin:     e.cfg.InputMinBase,
			InputMax:     e.cfg.InputMaxBase,
			MinProfitBps: e.cfg.MinProfitBps,
		}

		result := validator.Validate(c, e.quotes, cost, params)
		if !result.Accepted {
			continue
		}

		opp := result.Opportunity
		opp.CreatedAtNs = time.Now().UnixNano()

		evidence := scorer.Evidence{
			SlotFreshness:     scorer.SlotFreshnessScore(c.SourceSlot, freshest, e.cfg.MaxSlotLag),
			LiquidityHeadroom: scorer.LiquidityHeadroomScore(c.MinLiquidity, e.cfg.MinLiquidity),
			AllVenuesDistinct: e.venuesDistinct(c),
			HistoricalSuccess: e.meanPoolSuccess(c),
		}
		opp.Confidence = scorer.Confidence(evidence)
		opp.ScoreClass = scorer.Classify(opp.Confidence)

		out = append(out, opp)
	}

	return out
}

func (e *Engine) baseMintQuote(slot uint64) (decimal.Decimal, uint8) {
	if e.oracle == nil {
		return decimal.NewFromInt(1), 9
	}
	price, err := e.oracle(slot)
	if err != nil {
		log.Printf("[Engine] base mint USD oracle error at slot %d: %v", slot, err)
		return decimal.NewFromInt(1), 9
	}
	return price, 9
}

func (e *Engine) venuesDistinct(c models.Cycle) bool {
	seen := make(map[models.VenueKind]bool, len(c.PoolAddresses))
	for _, pool := range c.PoolAddresses {
		q, ok := e.quotes.Quote(pool, true)
		if !ok {
			return false
		}
		if seen[q.Venue] {
			return false
		}
		seen[q.Venue] = true
	}
	return true
}

func (e *Engine) meanPoolSuccess(c models.Cycle) float64 {
	if len(c.PoolAddresses) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, pool := range c.PoolAddresses {
		sum += e.tracker.SuccessRate(pool)
	}
	return sum / float64(len(c.PoolAddresses))
}

// selectAndEmit applies the global gates (latency, balance, throughput,
// tip-to-profit); only opportunities that clear every gate and carry
// ScoreClass GO are handed to the emitter.
func (e *Engine) selectAndEmit(opportunities []models.ValidatedOpportunity) int {
	if e.rttProbe != nil {
		e.latency.Observe(e.rttProbe())
	}
	if !e.latency.Allow() {
		log.Println("[Scorer] latency gate blocked emission this tick")
		return 0
	}
	if e.balanceSource != nil && !scorer.BalanceGate(scorer.GateInputs{BaseMintBalance: e.balanceSource(), BalanceFloor: e.cfg.BalanceFloor}) {
		log.Println("[Scorer] balance gate blocked emission this tick")
		return 0
	}

	emitted := 0
	for _, opp := range opportunities {
		if opp.ScoreClass != models.ScoreGo {
			continue
		}
		if !scorer.TipToProfitGate(opp) {
			continue
		}
		if !e.limiter.Allow() {
			continue
		}
		e.emit.Submit(opp)
		emitted++
	}
	return emitted
}

func (e *Engine) publishStats(s Stats) {
	e.stats.Store(&s)
}
