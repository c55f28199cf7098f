// Package cycle implements the Cycle Finder (C3): bounded-depth DFS over a
// Pool Graph snapshot that enumerates simple cycles through a base mint
// whose summed edge weight is negative (net positive arbitrage).
package cycle

import (
	"github.com/rawblock/arb-cycle-engine/internal/graph"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// Params bounds a single find invocation. Zero-value fields fall back to
// the defaults in WithDefaults.
type Params struct {
	MaxHops      int    // K, 2..5
	MaxSlotLag   uint64 // excludes edges older than freshest_slot - MaxSlotLag
	FreshestSlot uint64
	OutputCap    int // default 64
}

// WithDefaults fills unset fields with their configured defaults.
func (p Params) WithDefaults() Params {
	if p.MaxHops == 0 {
		p.MaxHops = 4
	}
	if p.MaxSlotLag == 0 {
		p.MaxSlotLag = 5
	}
	if p.OutputCap == 0 {
		p.OutputCap = 64
	}
	return p
}

type legInfo struct {
	pool      models.PoolAddress
	liquidity uint64
	feeBps    uint32
	slot      uint64
	rate      float64
	forward   bool
}

type searchState struct {
	g         *graph.PoolGraph
	base      models.TokenId
	params    Params
	minSlot   uint64
	minWeight float64 // cheapest (most negative) edge weight seen, for optimistic pruning
	path      []models.TokenId
	legs      []legInfo
	visited   map[models.TokenId]bool
	usedPools map[models.PoolAddress]bool
	out       []models.Cycle
}

// Find enumerates simple cycles base -> v1 -> ... -> base of length in
// [2, params.MaxHops] whose summed weight is strictly negative. It is a
// pure function of the graph snapshot: it cannot fail, and an empty result
// means the base mint currently has no outbound liquidity or no profitable
// cycle was found.
func Find(g *graph.PoolGraph, base models.TokenId, params Params) []models.Cycle {
	params = params.WithDefaults()

	st := &searchState{
		g:         g,
		base:      base,
		params:    params,
		visited:   make(map[models.TokenId]bool),
		usedPools: make(map[models.PoolAddress]bool),
	}
	st.minSlot, st.minWeight = scanBounds(g, base, params.MaxHops)
	if params.FreshestSlot > 0 {
		st.minSlot = params.FreshestSlot
	}

	st.path = append(st.path, base)
	st.visited[base] = true

	st.dfs(base, 0, 0)

	return st.out
}

// scanBounds walks the graph breadth-first a few hops from base to find the
// freshest observed slot (used as the staleness reference when the caller
// doesn't supply one) and the single most negative edge weight reachable,
// which gives an optimistic (best-case) per-hop improvement for pruning.
func scanBounds(g *graph.PoolGraph, base models.TokenId, maxHops int) (uint64, float64) {
	var freshest uint64
	minWeight := 0.0
	seen := map[models.TokenId]bool{base: true}
	frontier := []models.TokenId{base}

	for depth := 0; depth < maxHops && len(frontier) > 0; depth++ {
		var next []models.TokenId
		for _, mint := range frontier {
			for _, e := range g.Outbound(mint) {
				if e.LastUpdateSlot > freshest {
					freshest = e.LastUpdateSlot
				}
				if e.Weight < minWeight {
					minWeight = e.Weight
				}
				if !seen[e.TargetMint] {
					seen[e.TargetMint] = true
					next = append(next, e.TargetMint)
				}
			}
		}
		frontier = next
	}
	return freshest, minWeight
}

func (st *searchState) dfs(current models.TokenId, depth int, sum float64) {
	if len(st.out) >= st.params.OutputCap {
		return
	}
	if depth >= st.params.MaxHops {
		return
	}

	remaining := st.params.MaxHops - depth
	// Optimistic bound: even if every remaining hop achieved the cheapest
	// observed edge weight, could the total still go negative?
	if sum+float64(remaining)*st.minWeight >= 0 {
		return
	}

	for _, e := range st.g.Outbound(current) {
		if e.Stale {
			continue
		}
		if st.minSlot > 0 && e.LastUpdateSlot+st.params.MaxSlotLag < st.minSlot {
			continue
		}
		if st.usedPools[e.PoolAddress] {
			continue
		}

		newSum := sum + e.Weight
		leg := legInfo{
			pool:      e.PoolAddress,
			liquidity: e.Liquidity,
			feeBps:    e.FeeBps,
			slot:      e.LastUpdateSlot,
			rate:      e.ExchangeRate,
			forward:   e.Forward,
		}

		if e.TargetMint == st.base {
			if depth+1 >= 2 && newSum < 0 {
				st.legs = append(st.legs, leg)
				st.emit()
				st.legs = st.legs[:len(st.legs)-1]
			}
			continue
		}

		if st.visited[e.TargetMint] {
			continue
		}

		st.visited[e.TargetMint] = true
		st.usedPools[e.PoolAddress] = true
		st.path = append(st.path, e.TargetMint)
		st.legs = append(st.legs, leg)

		st.dfs(e.TargetMint, depth+1, newSum)

		st.path = st.path[:len(st.path)-1]
		st.legs = st.legs[:len(st.legs)-1]
		delete(st.usedPools, e.PoolAddress)
		delete(st.visited, e.TargetMint)

		if len(st.out) >= st.params.OutputCap {
			return
		}
	}
}

func (st *searchState) emit() {
	mints := make([]models.TokenId, len(st.path)+1)
	copy(mints, st.path)
	mints[len(mints)-1] = st.base

	pools := make([]models.PoolAddress, len(st.legs))
	legForward := make([]bool, len(st.legs))
	var minLiquidity uint64
	var totalFeeBps uint64
	minSlot := ^uint64(0)
	grossRate := 1.0

	for i, leg := range st.legs {
		pools[i] = leg.pool
		legForward[i] = leg.forward
		grossRate *= leg.rate * (1 - float64(leg.feeBps)/10_000)
		totalFeeBps += uint64(leg.feeBps)
		if i == 0 || leg.liquidity < minLiquidity {
			minLiquidity = leg.liquidity
		}
		if leg.slot < minSlot {
			minSlot = leg.slot
		}
	}

	c := models.Cycle{
		Mints:                mints,
		PoolAddresses:        pools,
		LegForward:           legForward,
		TheoreticalProfitPct: (grossRate - 1) * 100,
		MinLiquidity:         minLiquidity,
		TotalFeeBps:          totalFeeBps,
		SourceSlot:           minSlot,
	}
	st.out = append(st.out, c)
}
