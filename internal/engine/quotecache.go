package engine

import (
	"sync"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"

	"github.com/rawblock/arb-cycle-engine/internal/validator"
	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// pairedQuote holds both directions' exact-math state for one physical
// pool, mirroring the forward/backward edgePair package graph keeps: a
// cycle leg that crosses the pool's reciprocal side must re-price against
// the reciprocal reserves, not the event's original orientation.
type pairedQuote struct {
	forward  validator.VenueQuote
	backward validator.VenueQuote
}

// quoteCache is the venue-quote cache external to the Pool Graph: C2 keeps
// only rate/fee/liquidity/slot, while this cache carries the reserve/tick/
// bin shape each exact-math routine needs. It is refreshed by the same
// ingress drain step that mutates the graph, deriving the exact-math state
// from the same PriceUpdateEvent rather than a second wire format — there
// is no second source of reserve truth to decode.
type quoteCache struct {
	mu     sync.RWMutex
	quotes map[models.PoolAddress]pairedQuote
}

func newQuoteCache() *quoteCache {
	return &quoteCache{quotes: make(map[models.PoolAddress]pairedQuote)}
}

// Quote implements validator.QuoteCache, returning the forward- or
// backward-side quote depending on which physical side of the pool the
// traversed leg actually used.
func (c *quoteCache) Quote(pool models.PoolAddress, forward bool) (validator.VenueQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.quotes[pool]
	if !ok {
		return validator.VenueQuote{}, false
	}
	if forward {
		return p.forward, true
	}
	return p.backward, true
}

// update derives both directions' VenueQuote from the latest accepted
// event for pool and stores them keyed by pool_address. The forward leg's
// reserve pair is (liquidity, liquidity*rate) in the event's own
// SourceMint->TargetMint orientation; the backward leg swaps ReserveIn and
// ReserveOut since a swap through the reciprocal side draws against the
// same two reserves in the opposite order. CLMM/DLMM legs reuse the same
// liquidity figure for both directions since the ingress event carries no
// finer-grained breakdown.
func (c *quoteCache) update(event models.PriceUpdateEvent) {
	reserveIn := decimal.NewFromInt(int64(event.NewLiquidity))
	reserveOut := reserveIn.Mul(decimal.NewFromFloat(event.NewRate))

	forward := validator.VenueQuote{
		Venue:      event.Venue,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
		FeeBps:     event.NewFeeBps,
	}
	backward := validator.VenueQuote{
		Venue:      event.Venue,
		ReserveIn:  reserveOut,
		ReserveOut: reserveIn,
		FeeBps:     event.NewFeeBps,
	}

	if event.Venue == models.VenueCLMM {
		liq := uint128.From64(event.NewLiquidity)
		forward.TickLiquidity, forward.TickRangeLimit = liq, liq
		backward.TickLiquidity, backward.TickRangeLimit = liq, liq
	}
	if event.Venue == models.VenueDLMM {
		bins := []uint128.Uint128{uint128.From64(event.NewLiquidity)}
		forward.BinDepths = bins
		backward.BinDepths = bins
	}

	c.mu.Lock()
	c.quotes[event.PoolAddress] = pairedQuote{forward: forward, backward: backward}
	c.mu.Unlock()
}
