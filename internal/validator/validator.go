// Package validator implements the Cycle Validator (C4): re-prices
// candidate cycles with exact per-venue AMM math, sizes the input via
// binary search, and applies the cost model that turns a theoretical
// cycle into a ValidatedOpportunity or a structured rejection.
package validator

import (
	"github.com/shopspring/decimal"

	"github.com/rawblock/arb-cycle-engine/pkg/models"
)

// baseSolanaFeeLamports approximates the fixed network fee charged
// regardless of cycle complexity.
const baseSolanaFeeLamports = 5000

// sizingMaxIterations and sizingMinImprovementBps bound the binary search
// for the profit-maximizing input amount.
const (
	sizingMaxIterations     = 12
	sizingMinImprovementBps = 1
)

// QuoteCache resolves a pool_address + direction to its current exact-math
// venue quote. It is external to the Pool Graph: reserves and tick/bin
// state are refreshed by the same ingress layer but kept in a separate
// cache so C2 stays a thin rate/weight/slot structure.
type QuoteCache interface {
	Quote(pool models.PoolAddress, forward bool) (VenueQuote, bool)
}

// CostModel supplies the USD-denominated inputs the validator cannot derive
// from pool state alone: the current priority tip (set by C5) and the
// observed transaction failure rate.
type CostModel struct {
	PriorityTipUSD   decimal.Decimal
	FailureRate      float64 // P_fail, default 0.05
	BaseMintUSDPrice decimal.Decimal
	BaseMintDecimals uint8
}

// Params bounds a single validation: the input search range and the
// minimum acceptable net profit after costs.
type Params struct {
	InputMin     uint64
	InputMax     uint64
	MinProfitBps int64 // min_profit_bps, applied to expected_net_profit_usd vs notional
}

// Result is the outcome of validating one cycle: either a populated
// opportunity or a reason the cycle was rejected.
type Result struct {
	Opportunity models.ValidatedOpportunity
	Accepted    bool
	Reason      models.RejectReason
}

// Validate re-prices every leg of c at a candidate size, binary-searches for
// the profit-maximizing input within params, applies the cost model, and
// returns a ValidatedOpportunity or a structured rejection. It performs no
// I/O: quotes must already be resident in cache.
func Validate(c models.Cycle, cache QuoteCache, cost CostModel, params Params) Result {
	if params.InputMax == 0 || params.InputMax < params.InputMin {
		return Result{Reason: models.RejectSizeBelowMin}
	}

	lo := decimal.NewFromInt(int64(params.InputMin))
	hi := decimal.NewFromInt(int64(params.InputMax))
	if lo.IsZero() {
		lo = decimal.NewFromInt(1)
	}

	bestInput := lo
	bestNet, bestOut, reason := evaluate(c, cache, cost, bestInput)
	if reason != models.RejectNone {
		// Try the top of the range once before giving up: a cycle that
		// fails at the floor size may still clear at a larger size.
		altNet, altOut, altReason := evaluate(c, cache, cost, hi)
		if altReason != models.RejectNone {
			return Result{Reason: reason}
		}
		bestInput, bestNet, bestOut, reason = hi, altNet, altOut, altReason
	}

	for i := 0; i < sizingMaxIterations; i++ {
		mid := lo.Add(hi).Div(decimal.NewFromInt(2))
		midNet, midOut, midReason := evaluate(c, cache, cost, mid)
		if midReason != models.RejectNone {
			hi = mid
			continue
		}

		improvementBps := int64(0)
		if !bestNet.IsZero() {
			improvementBps = midNet.Sub(bestNet).Div(bestNet.Abs()).Mul(decimal.NewFromInt(10_000)).IntPart()
		}

		if midNet.GreaterThan(bestNet) {
			bestInput, bestNet, bestOut = mid, midNet, midOut
			lo = mid
		} else {
			hi = mid
		}

		if improvementBps < sizingMinImprovementBps && improvementBps > -sizingMinImprovementBps {
			break
		}
	}

	if bestNet.IsNegative() || bestNet.IsZero() {
		return Result{Reason: models.RejectNegativeNet}
	}

	usdPerBase := cost.BaseMintUSDPrice
	if usdPerBase.IsZero() {
		usdPerBase = decimal.NewFromInt(1)
	}
	notionalUSD := bestInput.Div(decimal.NewFromInt(10).Pow(decimal.NewFromInt32(int32(cost.BaseMintDecimals)))).Mul(usdPerBase)
	floor := decimal.NewFromInt(int64(params.MinProfitBps)).Div(decimal.NewFromInt(10_000)).Mul(notionalUSD)
	if bestNet.LessThan(floor) {
		return Result{Reason: models.RejectSizeBelowMin}
	}

	opp := models.ValidatedOpportunity{
		Cycle:                c,
		InputAmount:          bestInput.BigInt().Uint64(),
		ExpectedOutput:       bestOut.BigInt().Uint64(),
		ExpectedNetProfitUSD: bestNet,
		PriorityTipUSD:       cost.PriorityTipUSD,
	}
	return Result{Opportunity: opp, Accepted: true, Reason: models.RejectNone}
}

// evaluate runs every leg of c through its venue's exact-math routine at
// the given input size, then applies the cost model, returning the net
// USD-equivalent profit and the final-leg output in base-mint units.
func evaluate(c models.Cycle, cache QuoteCache, cost CostModel, input decimal.Decimal) (decimal.Decimal, decimal.Decimal, models.RejectReason) {
	amount := input
	for i, pool := range c.PoolAddresses {
		forward := true
		if i < len(c.LegForward) {
			forward = c.LegForward[i]
		}
		quote, ok := cache.Quote(pool, forward)
		if !ok {
			return decimal.Zero, decimal.Zero, models.RejectStaleLeg
		}
		out, reason := quoteOutput(quote, amount)
		if reason != models.RejectNone {
			return decimal.Zero, decimal.Zero, reason
		}
		amount = out
	}

	grossProfitBase := amount.Sub(input)

	usdPerBase := cost.BaseMintUSDPrice
	if usdPerBase.IsZero() {
		usdPerBase = decimal.NewFromInt(1)
	}
	decimalsScale := decimal.NewFromInt(10).Pow(decimal.NewFromInt32(int32(cost.BaseMintDecimals)))
	if decimalsScale.IsZero() {
		decimalsScale = decimal.NewFromInt(1)
	}

	grossProfitUSD := grossProfitBase.Div(decimalsScale).Mul(usdPerBase)

	baseFeeUSD := decimal.NewFromInt(baseSolanaFeeLamports).Div(decimal.NewFromInt(1_000_000_000)).Mul(usdPerBase)

	notionalUSD := input.Div(decimalsScale).Mul(usdPerBase)
	slippagePenaltyUSD := slippagePenalty(input, c.MinLiquidity, notionalUSD)

	netProfitUSD := grossProfitUSD.Sub(baseFeeUSD).Sub(cost.PriorityTipUSD).Sub(slippagePenaltyUSD)

	failRate := cost.FailureRate
	if failRate <= 0 {
		failRate = 0.05
	}
	discount := decimal.NewFromFloat(1 - failRate)
	netProfitUSD = netProfitUSD.Mul(discount)

	return netProfitUSD, amount, models.RejectNone
}

// slippagePenalty approximates the execution cost of sizing beyond a
// cycle's thinnest leg: a USD-denominated cost that grows with the square
// of input relative to MinLiquidity, mirroring the price-impact curve a
// constant-product pool itself produces (double the relative size,
// roughly quadruple the realized slippage), capped at the full notional
// value of the trade. A cycle with no recorded liquidity floor
// (MinLiquidity == 0) carries no penalty here; RejectNoDepth in
// quoteOutput already screens legs with no usable depth.
func slippagePenalty(input decimal.Decimal, minLiquidity uint64, notionalUSD decimal.Decimal) decimal.Decimal {
	if minLiquidity == 0 {
		return decimal.Zero
	}
	ratio := input.Div(decimal.NewFromInt(int64(minLiquidity)))
	penaltyFraction := ratio.Mul(ratio)
	if penaltyFraction.GreaterThan(decimal.NewFromInt(1)) {
		penaltyFraction = decimal.NewFromInt(1)
	}
	return notionalUSD.Mul(penaltyFraction)
}
