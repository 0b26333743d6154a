package router

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/hxuan190/swap-engine/internal/domain"
)

var (
	bpsDenom     = big.NewInt(domain.FeeDivisor)
	hundred      = big.NewInt(100)
	u256BpsDenom = uint256.NewInt(domain.FeeDivisor)
)

// GetAmountOut quotes a constant-product pool:
//
//	out = in*(10000-fee)*rOut / (rIn*10000 + in*(10000-fee))
//
// The hot path runs on 256-bit integers and falls back to big.Int when an
// operand or intermediate product does not fit.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if feeBps >= domain.FeeDivisor {
		return nil, ErrInvalidPool
	}
	if amountIn.Sign() == 0 {
		return new(big.Int), nil
	}

	if out, ok := getAmountOutU256(amountIn, reserveIn, reserveOut, feeBps); ok {
		return out, nil
	}
	return getAmountOutBig(amountIn, reserveIn, reserveOut, feeBps), nil
}

func getAmountOutU256(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, bool) {
	in, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, false
	}
	rIn, overflow := uint256.FromBig(reserveIn)
	if overflow {
		return nil, false
	}
	rOut, overflow := uint256.FromBig(reserveOut)
	if overflow {
		return nil, false
	}

	inWithFee, overflow := new(uint256.Int).MulOverflow(in, uint256.NewInt(uint64(domain.FeeDivisor-feeBps)))
	if overflow {
		return nil, false
	}
	numerator, overflow := new(uint256.Int).MulOverflow(inWithFee, rOut)
	if overflow {
		return nil, false
	}
	denominator, overflow := new(uint256.Int).MulOverflow(rIn, u256BpsDenom)
	if overflow {
		return nil, false
	}
	if _, overflow = denominator.AddOverflow(denominator, inWithFee); overflow {
		return nil, false
	}
	return numerator.Div(numerator, denominator).ToBig(), true
}

func getAmountOutBig(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) *big.Int {
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(domain.FeeDivisor-feeBps)))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, bpsDenom)
	denominator.Add(denominator, inWithFee)
	return numerator.Quo(numerator, denominator)
}

// poolAmountOut quotes any supported pool kind for tokenIn -> tokenOut.
func poolAmountOut(pool *domain.Pool, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	if pool == nil || !pool.IsReady() {
		return nil, ErrInvalidPool
	}
	if pool.IsStable() {
		res, err := StableSwapOut(pool, tokenIn, tokenOut, amountIn)
		if err != nil {
			return nil, err
		}
		return res.AmountOut, nil
	}
	rIn, rOut := pool.Reserve(tokenIn), pool.Reserve(tokenOut)
	if rIn == nil || rOut == nil {
		return nil, ErrTokenNotInPool
	}
	return GetAmountOut(amountIn, rIn, rOut, pool.FeeBps)
}

// splitAmount returns total*percent/100.
func splitAmount(total *big.Int, percent uint8) *big.Int {
	out := new(big.Int).Mul(total, big.NewInt(int64(percent)))
	return out.Quo(out, hundred)
}
