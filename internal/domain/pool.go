package domain

import (
	"math/big"
)

type PoolKind uint8

const (
	PoolKindSimple PoolKind = iota
	PoolKindStable
)

func (k PoolKind) String() string {
	switch k {
	case PoolKindSimple:
		return "SIMPLE_POOL"
	case PoolKindStable:
		return "STABLE_SWAP"
	default:
		return "UNKNOWN"
	}
}

// FeeDivisor is the denominator of pool fee rates (basis points).
const FeeDivisor = 10000

// Pool is a read-only snapshot of an exchange pool. Reserves are raw token units
// aligned with TokenIDs.
type Pool struct {
	ID                uint64
	Kind              PoolKind
	TokenIDs          []string
	Reserves          []*big.Int
	FeeBps            uint32
	SharesTotalSupply *big.Int

	// Stable is only set for PoolKindStable.
	Stable *StableData
}

// StableData holds the stable-swap curve parameters. CAmounts are the reserves
// scaled to StableLPDecimals so that members with different precision compare.
type StableData struct {
	Decimals []uint8
	CAmounts []*big.Int
	Amp      uint64
}

// StableLPDecimals is the common precision of stable pool comparable amounts.
const StableLPDecimals = 18

func (p *Pool) IsStable() bool {
	return p.Kind == PoolKindStable && p.Stable != nil
}

// TokenIndex returns the position of token in the pool or -1.
func (p *Pool) TokenIndex(token string) int {
	for i, id := range p.TokenIDs {
		if id == token {
			return i
		}
	}
	return -1
}

func (p *Pool) Has(token string) bool {
	return p.TokenIndex(token) >= 0
}

// Reserve returns the raw reserve of token, or nil when token is not in the pool.
func (p *Pool) Reserve(token string) *big.Int {
	i := p.TokenIndex(token)
	if i < 0 || i >= len(p.Reserves) {
		return nil
	}
	return p.Reserves[i]
}

// IsReady reports whether the pool holds liquidity on every side.
func (p *Pool) IsReady() bool {
	if len(p.TokenIDs) < 2 || len(p.Reserves) != len(p.TokenIDs) {
		return false
	}
	for _, r := range p.Reserves {
		if r == nil || r.Sign() <= 0 {
			return false
		}
	}
	if p.Kind != PoolKindStable {
		return true
	}
	if p.Stable == nil || len(p.Stable.CAmounts) != len(p.TokenIDs) || len(p.Stable.Decimals) != len(p.TokenIDs) {
		return false
	}
	// the curve divides by every comparable amount
	for _, c := range p.Stable.CAmounts {
		if c == nil || c.Sign() <= 0 {
			return false
		}
	}
	return true
}

// PoolSnapshot is the pool universe fetched in one refresh.
type PoolSnapshot struct {
	Version uint64
	Pools   []*Pool
}
