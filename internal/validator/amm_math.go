package validator

import (
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// VenueQuote is the external venue-quote cache entry C4 re-prices against;
// it carries the raw reserve/tick/bin state that PoolEdge's cached rate
// does not. Each entry describes one swap direction of a pool; the quote
// cache holds one for each side of the same physical pool.
type VenueQuote struct {
	Venue VenueKind

	// AMM_CONSTANT_PRODUCT / AMM_STABLE
	ReserveIn  decimal.Decimal
	ReserveOut decimal.Decimal

	// CLMM: current tick liquidity and the width of the active tick's range,
	// expressed in input-token units, beyond which the leg cannot be filled
	// without crossing into an untracked tick.
	TickLiquidity  uint128.Uint128
	TickRangeLimit uint128.Uint128

	// DLMM: per-bin depth, nearest bin first.
	BinDepths []uint128.Uint128

	FeeBps uint32
}

type VenueKind = models.VenueKind

// quoteOutput dispatches to the exact-math routine selected by quote.Venue.
// It returns the gross output (before the cost model in validator.go is
// applied) or a RejectReason when the venue cannot fill the requested size.
func quoteOutput(quote VenueQuote, amountIn decimal.Decimal) (decimal.Decimal, models.RejectReason) {
	switch quote.Venue {
	case models.VenueAMMConstantProduct:
		return constantProductOutput(quote, amountIn)
	case models.VenueAMMStable:
		return stableSwapOutput(quote, amountIn)
	case models.VenueCLMM:
		return clmmOutput(quote, amountIn)
	case models.VenueDLMM:
		return dlmmOutput(quote, amountIn)
	default:
		return decimal.Zero, models.RejectNoDepth
	}
}

// constantProductOutput implements the standard x*y=k formula with fee
// taken out of the input leg before the swap:
//
//	out = reserve_out * in * (1-fee) / (reserve_in + in*(1-fee))
func constantProductOutput(quote VenueQuote, amountIn decimal.Decimal) (decimal.Decimal, models.RejectReason) {
	if quote.ReserveIn.IsZero() || quote.ReserveOut.IsZero() {
		return decimal.Zero, models.RejectNoDepth
	}

	feeMultiplier := decimal.NewFromInt(10_000).Sub(decimal.NewFromInt32(int32(quote.FeeBps))).Div(decimal.NewFromInt(10_000))
	amountInAfterFee := amountIn.Mul(feeMultiplier)

	denom := quote.ReserveIn.Add(amountInAfterFee)
	if denom.IsZero() {
		return decimal.Zero, models.RejectNoDepth
	}

	out := quote.ReserveOut.Mul(amountInAfterFee).Div(denom)
	if out.GreaterThanOrEqual(quote.ReserveOut) {
		return decimal.Zero, models.RejectNoDepth
	}
	return out, models.RejectNone
}

// stableSwapTolerance is the relative tolerance the Newton iteration solves
// the StableSwap invariant to before giving up.
const stableSwapTolerance = "0.000000001" // 1e-9

// stableSwapMaxIterations bounds the Newton solve; non-convergence within
// this budget is treated as NoDepth rather than looping indefinitely.
const stableSwapMaxIterations = 32

// stableSwapOutput solves the two-coin StableSwap invariant
// 4A*(x+y) + D = 4A*D + D^3/(4*x*y) numerically via Newton iteration on the
// output reserve, matching the curve-style amplification model: near 1:1 for
// balanced pools, degrading toward constant-product as the pool skews.
func stableSwapOutput(quote VenueQuote, amountIn decimal.Decimal) (decimal.Decimal, models.RejectReason) {
	if quote.ReserveIn.IsZero() || quote.ReserveOut.IsZero() {
		return decimal.Zero, models.RejectNoDepth
	}

	const amplification = 100 // fixed amplification coefficient for the tracked pool class

	feeMultiplier := decimal.NewFromInt(10_000).Sub(decimal.NewFromInt32(int32(quote.FeeBps))).Div(decimal.NewFromInt(10_000))
	dxAfterFee := amountIn.Mul(feeMultiplier)

	x := quote.ReserveIn.Add(dxAfterFee)
	y := quote.ReserveOut
	sum := quote.ReserveIn.Add(quote.ReserveOut)
	a := decimal.NewFromInt(amplification)
	tol, _ := decimal.NewFromString(stableSwapTolerance)

	// Newton iteration for the new output reserve y' that keeps the
	// invariant constant after x has absorbed the input: solve
	// f(y') = 4A*(x+y') + D - (4A*D + D^3/(4*x*y')) = 0
	// Simplified operationally below by iterating toward the balance point
	// using the classic StableSwap get_y recurrence.
	d := sum // initial invariant approximation for a balanced pool
	yPrime := y
	for i := 0; i < stableSwapMaxIterations; i++ {
		c := d.Mul(d).Mul(d).Div(x.Mul(decimal.NewFromInt(16)).Mul(a))
		b := x.Add(d.Div(a.Mul(decimal.NewFromInt(4))))
		next := yPrime.Mul(yPrime).Add(c).Div(decimal.NewFromInt(2).Mul(yPrime).Add(b).Sub(d))

		diff := next.Sub(yPrime).Abs()
		yPrime = next
		if yPrime.IsZero() {
			return decimal.Zero, models.RejectNoDepth
		}
		if diff.Div(yPrime).LessThan(tol) {
			out := y.Sub(yPrime)
			if out.IsNegative() || out.GreaterThanOrEqual(y) {
				return decimal.Zero, models.RejectNoDepth
			}
			return out, models.RejectNone
		}
	}
	return decimal.Zero, models.RejectNoDepth
}

// clmmOutput fills against the current tick's liquidity only; a leg that
// needs to cross into the next tick (a narrower range than the pack's
// reference implementations track without a full tick-bitmap walk) is
// reported as NoDepth rather than approximated.
func clmmOutput(quote VenueQuote, amountIn decimal.Decimal) (decimal.Decimal, models.RejectReason) {
	amountInU, ok := decimalToUint128(amountIn)
	if !ok {
		return decimal.Zero, models.RejectNoDepth
	}
	if amountInU.Cmp(quote.TickRangeLimit) > 0 {
		return decimal.Zero, models.RejectNoDepth
	}
	if quote.TickLiquidity.IsZero() {
		return decimal.Zero, models.RejectNoDepth
	}

	feeMultiplier := decimal.NewFromInt(10_000).Sub(decimal.NewFromInt32(int32(quote.FeeBps))).Div(decimal.NewFromInt(10_000))
	amountInAfterFee := amountIn.Mul(feeMultiplier)

	liquidity := uint128ToDecimal(quote.TickLiquidity)
	// Within a single tick, CLMM behaves like constant-product with the
	// tick's liquidity standing in for both reserves.
	denom := liquidity.Add(amountInAfterFee)
	if denom.IsZero() {
		return decimal.Zero, models.RejectNoDepth
	}
	out := liquidity.Mul(amountInAfterFee).Div(denom)
	return out, models.RejectNone
}

// dlmmOutput walks bins nearest-first, consuming each bin's depth before
// spilling into the next, and fails the leg if the requested size exceeds
// total tracked bin depth.
func dlmmOutput(quote VenueQuote, amountIn decimal.Decimal) (decimal.Decimal, models.RejectReason) {
	if len(quote.BinDepths) == 0 {
		return decimal.Zero, models.RejectNoDepth
	}

	feeMultiplier := decimal.NewFromInt(10_000).Sub(decimal.NewFromInt32(int32(quote.FeeBps))).Div(decimal.NewFromInt(10_000))
	remaining := amountIn.Mul(feeMultiplier)
	out := decimal.Zero

	for _, bin := range quote.BinDepths {
		binDepth := uint128ToDecimal(bin)
		if binDepth.IsZero() {
			continue
		}
		if remaining.LessThanOrEqual(binDepth) {
			// Within this bin, output tracks input 1:1 net of fee (bins are
			// priced flat internally; slippage across bins is what varies).
			out = out.Add(remaining)
			return out, models.RejectNone
		}
		out = out.Add(binDepth)
		remaining = remaining.Sub(binDepth)
	}

	return decimal.Zero, models.RejectNoDepth
}

func decimalToUint128(d decimal.Decimal) (uint128.Uint128, bool) {
	if d.IsNegative() {
		return uint128.Uint128{}, false
	}
	big := d.BigInt()
	if big.BitLen() > 128 {
		return uint128.Uint128{}, false
	}
	return uint128.FromBig(big), true
}

func uint128ToDecimal(u uint128.Uint128) decimal.Decimal {
	return decimal.NewFromBigInt(u.Big(), 0)
}
