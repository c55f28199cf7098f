// Package models holds the value types shared across the arbitrage cycle
// engine: the pool graph's edges, the cycles the search produces, and the
// opportunities handed to the external executor.
package models

import (
	"github.com/shopspring/decimal"
)

// TokenId is an opaque 32-byte mint identifier. Equality and hashing only —
// no ordering is implied.
type TokenId [32]byte

// PoolAddress is an opaque 32-byte pool account identifier, unique per venue.
type PoolAddress [32]byte

// VenueKind is the closed set of AMM protocol families C4 knows how to
// re-price exactly.
type VenueKind int

const (
	VenueUnknown VenueKind = iota
	VenueAMMConstantProduct
	VenueAMMStable
	VenueCLMM
	VenueDLMM
)

func (v VenueKind) String() string {
	switch v {
	case VenueAMMConstantProduct:
		return "AMM_CONSTANT_PRODUCT"
	case VenueAMMStable:
		return "AMM_STABLE"
	case VenueCLMM:
		return "CLMM"
	case VenueDLMM:
		return "DLMM"
	default:
		return "UNKNOWN"
	}
}

// PriceUpdateEvent is the ingress record submitted by upstream feeds (venue
// adapters, WSS log parsers, RPC pollers) for a single pool side observation.
type PriceUpdateEvent struct {
	PoolAddress  PoolAddress
	Venue        VenueKind
	SourceMint   TokenId
	TargetMint   TokenId
	NewRate      float64 // target per source, marginal size 0
	NewFeeBps    uint32
	NewLiquidity uint64
	Slot         uint64
	ArrivalNs    int64
}

// PoolEdge is the unit of graph state: one directed side of a physical pool.
type PoolEdge struct {
	SourceMint     TokenId
	TargetMint     TokenId
	PoolAddress    PoolAddress
	Venue          VenueKind
	ExchangeRate   float64
	FeeBps         uint32
	Liquidity      uint64
	LastUpdateSlot uint64
	Weight         float64
	Stale          bool
	// Forward is true for the side that carries the rate exactly as
	// published by the ingress event (SourceMint->TargetMint); false for
	// the reciprocal side UpsertEdge derives alongside it.
	Forward bool
}

// Cycle is a candidate closed walk produced by the cycle finder.
type Cycle struct {
	Mints                []TokenId
	PoolAddresses        []PoolAddress
	// LegForward records, per PoolAddresses entry, which physical side of
	// that pool the walk actually traversed — needed because a pool
	// contributes two directed edges to the graph and a cycle can cross
	// either one.
	LegForward           []bool
	TheoreticalProfitPct float64
	MinLiquidity         uint64
	TotalFeeBps          uint64
	SourceSlot           uint64
}

// Len returns the number of hops (edges) in the cycle.
func (c Cycle) Len() int {
	if len(c.Mints) == 0 {
		return 0
	}
	return len(c.Mints) - 1
}

// RejectReason enumerates why C4 declined to turn a Cycle into an
// opportunity.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectNoDepth
	RejectNegativeNet
	RejectStaleLeg
	RejectSizeBelowMin
)

func (r RejectReason) String() string {
	switch r {
	case RejectNoDepth:
		return "NO_DEPTH"
	case RejectNegativeNet:
		return "NEGATIVE_NET"
	case RejectStaleLeg:
		return "STALE_LEG"
	case RejectSizeBelowMin:
		return "SIZE_BELOW_MIN"
	default:
		return "NONE"
	}
}

// ScoreClass is C5's triage classification of a ValidatedOpportunity.
type ScoreClass int

const (
	ScoreBlock ScoreClass = iota
	ScoreBorderline
	ScoreGo
)

func (s ScoreClass) String() string {
	switch s {
	case ScoreGo:
		return "GO"
	case ScoreBorderline:
		return "BORDERLINE"
	default:
		return "BLOCK"
	}
}

// ValidatedOpportunity is the output of C4+C5 and the input to C6.
type ValidatedOpportunity struct {
	Cycle                Cycle
	InputAmount          uint64
	ExpectedOutput       uint64
	ExpectedNetProfitUSD decimal.Decimal
	PriorityTipUSD       decimal.Decimal
	Confidence           float64
	ScoreClass           ScoreClass
	CreatedAtNs          int64
}

// FailureReason enumerates why an Executor submission did not land.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureNoLanding
	FailureSlippageExceeded
	FailureRevertedOnChain
	FailureUnknown
)

func (f FailureReason) String() string {
	switch f {
	case FailureNoLanding:
		return "NO_LANDING"
	case FailureSlippageExceeded:
		return "SLIPPAGE_EXCEEDED"
	case FailureRevertedOnChain:
		return "REVERTED_ON_CHAIN"
	case FailureUnknown:
		return "UNKNOWN"
	default:
		return "NONE"
	}
}

// ExecutionResult is the Executor's report for a submitted opportunity.
type ExecutionResult struct {
	Success          bool
	TxSignature      [64]byte
	HasSignature     bool
	RealizedOutput   uint64
	HasRealizedOut   bool
	ExecutionLagMs   uint64
	FailureReason    FailureReason
}

// TokenRegistryEntry is an append-safe persisted record of a known mint.
type TokenRegistryEntry struct {
	Mint          TokenId
	Decimals      uint8
	FirstSeenSlot uint64
}

// PoolRegistryEntry is an append-safe persisted record of a known pool.
type PoolRegistryEntry struct {
	PoolAddress  PoolAddress
	Venue        VenueKind
	TokenA       TokenId
	TokenB       TokenId
	LastSeenSlot uint64
}
