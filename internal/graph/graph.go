// Package graph implements the Pool Graph (C2): the mutable directed
// multigraph of token mints and pool sides that the rest of the engine
// reads from during a scan.
package graph

import (
	"fmt"
	"math"
	"sync"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// StaleLiquidityFloor is the usable-depth threshold below which a pool side
// is retained but marked stale and excluded from C3.
const StaleLiquidityFloor uint64 = 1000

// InvariantError reports a violated Pool Graph invariant. It is the one
// error kind the engine treats as fatal.
type InvariantError struct {
	Invariant int // 1..4
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("pool graph invariant %d violated: %s", e.Invariant, e.Detail)
}

type edgePair struct {
	forward  *models.PoolEdge
	backward *models.PoolEdge
}

// PoolGraph holds the authoritative snapshot of reachable liquidity. It is
// exclusively owned and mutated by the engine task; all other components
// hold read-only views during a scan (see package engine).
type PoolGraph struct {
	mu sync.RWMutex

	nodes     map[models.TokenId]struct{}
	adjacency map[models.TokenId][]*models.PoolEdge
	byPool    map[models.PoolAddress]*edgePair
}

// New returns an empty PoolGraph.
func New() *PoolGraph {
	return &PoolGraph{
		nodes:     make(map[models.TokenId]struct{}),
		adjacency: make(map[models.TokenId][]*models.PoolEdge),
		byPool:    make(map[models.PoolAddress]*edgePair),
	}
}

func computeWeight(rate float64, feeBps uint32) float64 {
	netRate := rate * (1 - float64(feeBps)/10_000)
	return -math.Log(netRate)
}

func (g *PoolGraph) ensureNode(mint models.TokenId) {
	if _, ok := g.nodes[mint]; !ok {
		g.nodes[mint] = struct{}{}
	}
}

// UpsertEdge creates missing TokenIds, locates or creates the forward and
// backward edges for event.PoolAddress, and replaces their rate, fee,
// liquidity, and slot. It recomputes weight and the stale flag. Callers
// (the ingress drain loop) must already have rejected equal-or-earlier-slot
// events; UpsertEdge only asserts the monotonicity invariant.
func (g *PoolGraph) UpsertEdge(event models.PriceUpdateEvent) error {
	if event.NewRate <= 0 {
		return &InvariantError{Invariant: 4, Detail: "exchange_rate <= 0"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureNode(event.SourceMint)
	g.ensureNode(event.TargetMint)

	pair, ok := g.byPool[event.PoolAddress]
	if !ok {
		forward := &models.PoolEdge{
			SourceMint:  event.SourceMint,
			TargetMint:  event.TargetMint,
			PoolAddress: event.PoolAddress,
			Venue:       event.Venue,
			Forward:     true,
		}
		backward := &models.PoolEdge{
			SourceMint:  event.TargetMint,
			TargetMint:  event.SourceMint,
			PoolAddress: event.PoolAddress,
			Venue:       event.Venue,
			Forward:     false,
		}
		pair = &edgePair{forward: forward, backward: backward}
		g.byPool[event.PoolAddress] = pair
		g.adjacency[event.SourceMint] = append(g.adjacency[event.SourceMint], forward)
		g.adjacency[event.TargetMint] = append(g.adjacency[event.TargetMint], backward)
	}

	if event.Slot < pair.forward.LastUpdateSlot {
		return &InvariantError{Invariant: 3, Detail: "slot regression on upsert"}
	}

	// The forward edge tracks the rate as published; the backward edge is
	// its reciprocal so that a single physical pool contributes exactly two
	// consistent directed edges.
	pair.forward.ExchangeRate = event.NewRate
	pair.forward.FeeBps = event.NewFeeBps
	pair.forward.Liquidity = event.NewLiquidity
	pair.forward.LastUpdateSlot = event.Slot
	pair.forward.Weight = computeWeight(event.NewRate, event.NewFeeBps)
	pair.forward.Stale = event.NewLiquidity < StaleLiquidityFloor

	backRate := 1 / event.NewRate
	pair.backward.ExchangeRate = backRate
	pair.backward.FeeBps = event.NewFeeBps
	pair.backward.Liquidity = event.NewLiquidity
	pair.backward.LastUpdateSlot = event.Slot
	pair.backward.Weight = computeWeight(backRate, event.NewFeeBps)
	pair.backward.Stale = pair.forward.Stale

	return nil
}

// MarkStale sets the stale flag on both sides of a pool without touching
// rate or slot data.
func (g *PoolGraph) MarkStale(pool models.PoolAddress) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pair, ok := g.byPool[pool]
	if !ok {
		return
	}
	pair.forward.Stale = true
	pair.backward.Stale = true
}

// Outbound returns a read-only, scan-stable snapshot of every edge leaving
// source. The returned slice must not be mutated and must not outlive the
// current tick's snapshot epoch.
func (g *PoolGraph) Outbound(source models.TokenId) []*models.PoolEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := g.adjacency[source]
	out := make([]*models.PoolEdge, len(edges))
	copy(out, edges)
	return out
}

// PoolCount returns the number of distinct physical pools tracked.
func (g *PoolGraph) PoolCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byPool)
}

// NodeCount returns the number of distinct token mints tracked.
func (g *PoolGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// CheckInvariants re-verifies invariants 1-2 (adjacency reachability and
// weight consistency) over the current state. It is intended for tests and
// for an optional periodic self-check; the hot path enforces invariants
// 3-4 inline during UpsertEdge.
func (g *PoolGraph) CheckInvariants() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for pool, pair := range g.byPool {
		foundForward, foundBackward := false, false
		for _, e := range g.adjacency[pair.forward.SourceMint] {
			if e == pair.forward {
				foundForward = true
			}
		}
		for _, e := range g.adjacency[pair.backward.SourceMint] {
			if e == pair.backward {
				foundBackward = true
			}
		}
		if !foundForward || !foundBackward {
			return &InvariantError{Invariant: 1, Detail: fmt.Sprintf("pool %x missing adjacency entry", pool)}
		}

		wantForward := computeWeight(pair.forward.ExchangeRate, pair.forward.FeeBps)
		if math.Abs(wantForward-pair.forward.Weight) > 1e-9 {
			return &InvariantError{Invariant: 2, Detail: fmt.Sprintf("pool %x forward weight drift", pool)}
		}
		wantBackward := computeWeight(pair.backward.ExchangeRate, pair.backward.FeeBps)
		if math.Abs(wantBackward-pair.backward.Weight) > 1e-9 {
			return &InvariantError{Invariant: 2, Detail: fmt.Sprintf("pool %x backward weight drift", pool)}
		}
	}
	return nil
}

// Snapshot is the serialization payload for the optional persistence layer.
// The on-disk wire format is owned by package store; this is the in-memory
// shape it marshals.
type Snapshot struct {
	Tokens []models.TokenRegistryEntry
	Pools  []models.PoolRegistryEntry
}

// Snapshot exports the current graph as token/pool registry records.
func (g *PoolGraph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Tokens: make([]models.TokenRegistryEntry, 0, len(g.nodes)),
		Pools:  make([]models.PoolRegistryEntry, 0, len(g.byPool)),
	}
	for mint := range g.nodes {
		snap.Tokens = append(snap.Tokens, models.TokenRegistryEntry{Mint: mint})
	}
	for addr, pair := range g.byPool {
		snap.Pools = append(snap.Pools, models.PoolRegistryEntry{
			PoolAddress:  addr,
			Venue:        pair.forward.Venue,
			TokenA:       pair.forward.SourceMint,
			TokenB:       pair.forward.TargetMint,
			LastSeenSlot: pair.forward.LastUpdateSlot,
		})
	}
	return snap
}

// Restore seeds the graph's node set and pool registry from a snapshot
// taken at startup. Restored pools carry no rate data until the first
// ingress event for that pool_address arrives; they exist only so that
// node_count()/pool_count() diagnostics and C3 traversal see them once
// rates are upserted.
func (g *PoolGraph) Restore(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range snap.Tokens {
		g.ensureNode(t.Mint)
	}
	for _, p := range snap.Pools {
		g.ensureNode(p.TokenA)
		g.ensureNode(p.TokenB)
		if _, ok := g.byPool[p.PoolAddress]; ok {
			continue
		}
		forward := &models.PoolEdge{
			SourceMint:     p.TokenA,
			TargetMint:     p.TokenB,
			PoolAddress:    p.PoolAddress,
			Venue:          p.Venue,
			LastUpdateSlot: p.LastSeenSlot,
			Stale:          true,
			Forward:        true,
		}
		backward := &models.PoolEdge{
			SourceMint:     p.TokenB,
			TargetMint:     p.TokenA,
			PoolAddress:    p.PoolAddress,
			Venue:          p.Venue,
			LastUpdateSlot: p.LastSeenSlot,
			Stale:          true,
			Forward:        false,
		}
		g.byPool[p.PoolAddress] = &edgePair{forward: forward, backward: backward}
		g.adjacency[p.TokenA] = append(g.adjacency[p.TokenA], forward)
		g.adjacency[p.TokenB] = append(g.adjacency[p.TokenB], backward)
	}
}
