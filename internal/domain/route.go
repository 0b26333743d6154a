package domain

import (
	"math/big"
)

// PoolMode tags how the legs of an estimate are executed on-chain.
type PoolMode string

const (
	// PoolModeParallel legs are independent single-hop swaps over the same pair.
	PoolModeParallel PoolMode = "parallel"
	// PoolModeStable is a single swap through a designated stable pool.
	PoolModeStable PoolMode = "stable"
	// PoolModeSmart legs form a multi-hop chain executed sequentially.
	PoolModeSmart PoolMode = "smart"
)

// RouteLeg is one hop of a route through a single pool.
type RouteLeg struct {
	PoolID      uint64
	PoolKind    PoolKind
	FeeBps      uint32
	TokenIn     string
	TokenOut    string
	AmountIn    *big.Int
	EstimateOut *big.Int
	Mode        PoolMode

	// Route and NodeRoute describe the whole smart route this leg belongs to.
	Route     []uint64
	NodeRoute []string
}

// Estimate is the outcome of one route estimation.
type Estimate struct {
	Mode          PoolMode
	Legs          []RouteLeg
	AmountIn      *big.Int
	AmountOut     *big.Int
	AverageFeeBps float64
}

func (e *Estimate) IsZero() bool {
	return e.AmountOut == nil || e.AmountOut.Sign() == 0
}

// StableEstimate is the result of quoting a single stable pool.
type StableEstimate struct {
	Leg       RouteLeg
	Pool      *Pool
	AmountIn  *big.Int
	AmountOut *big.Int
	// NoFeeAmountOut is the output before the pool fee is deducted.
	NoFeeAmountOut *big.Int
}

// AllLegsInMode reports whether every leg carries mode. Empty routes report false.
func AllLegsInMode(legs []RouteLeg, mode PoolMode) bool {
	if len(legs) == 0 {
		return false
	}
	for _, l := range legs {
		if l.Mode != mode {
			return false
		}
	}
	return true
}

// NoLegInMode reports whether no leg carries mode.
func NoLegInMode(legs []RouteLeg, mode PoolMode) bool {
	for _, l := range legs {
		if l.Mode == mode {
			return false
		}
	}
	return true
}

// ExpectedOutput sums the estimated output of legs ending in tokenOut.
func ExpectedOutput(legs []RouteLeg, tokenOut string) *big.Int {
	total := new(big.Int)
	for _, l := range legs {
		if l.TokenOut == tokenOut && l.EstimateOut != nil {
			total.Add(total, l.EstimateOut)
		}
	}
	return total
}
