package router

import (
	"math/big"

	"github.com/hxuan190/swap-engine/internal/domain"
)

const stableMaxIterations = 256

var one = big.NewInt(1)

// StableSwapResult is the stable curve output of one swap in raw token units.
type StableSwapResult struct {
	AmountOut      *big.Int
	Fee            *big.Int
	NoFeeAmountOut *big.Int
}

// computeD solves the stable-swap invariant D for the comparable amounts with
// Newton iteration. ann is amp*n^n.
func computeD(ann *big.Int, cAmounts []*big.Int) *big.Int {
	n := big.NewInt(int64(len(cAmounts)))
	sum := new(big.Int)
	for _, c := range cAmounts {
		sum.Add(sum, c)
	}
	if sum.Sign() == 0 {
		return new(big.Int)
	}

	d := new(big.Int).Set(sum)
	annMinusOne := new(big.Int).Sub(ann, one)
	nPlusOne := new(big.Int).Add(n, one)
	for i := 0; i < stableMaxIterations; i++ {
		dProd := new(big.Int).Set(d)
		for _, c := range cAmounts {
			// d_prod = d_prod * d / (c * n)
			dProd.Mul(dProd, d)
			dProd.Quo(dProd, new(big.Int).Mul(c, n))
		}
		prev := d

		// d = prev * (d_prod*n + sum*ann) / (prev*(ann-1) + d_prod*(n+1))
		numerator := new(big.Int).Mul(dProd, n)
		numerator.Add(numerator, new(big.Int).Mul(sum, ann))
		numerator.Mul(numerator, prev)
		denominator := new(big.Int).Mul(prev, annMinusOne)
		denominator.Add(denominator, new(big.Int).Mul(dProd, nPlusOne))
		d = numerator.Quo(numerator, denominator)

		if withinOne(d, prev) {
			break
		}
	}
	return d
}

// computeY returns the new balance of the output token after the input token
// balance moves to xNew, keeping D constant.
func computeY(ann *big.Int, d *big.Int, cAmounts []*big.Int, xNew *big.Int, idxIn, idxOut int) *big.Int {
	n := big.NewInt(int64(len(cAmounts)))

	c := new(big.Int).Set(d)
	sum := new(big.Int).Set(xNew)
	c.Mul(c, d)
	c.Quo(c, new(big.Int).Mul(xNew, n))
	for i, ci := range cAmounts {
		if i == idxIn || i == idxOut {
			continue
		}
		sum.Add(sum, ci)
		c.Mul(c, d)
		c.Quo(c, new(big.Int).Mul(ci, n))
	}
	c.Mul(c, d)
	c.Quo(c, new(big.Int).Mul(ann, n))

	// b = sum + d/ann, the iteration subtracts d itself
	b := new(big.Int).Quo(d, ann)
	b.Add(b, sum)

	y := new(big.Int).Set(d)
	for i := 0; i < stableMaxIterations; i++ {
		prev := y
		// y = (y^2 + c) / (2y + b - d)
		numerator := new(big.Int).Mul(prev, prev)
		numerator.Add(numerator, c)
		denominator := new(big.Int).Lsh(prev, 1)
		denominator.Add(denominator, b)
		denominator.Sub(denominator, d)
		if denominator.Sign() <= 0 {
			break
		}
		y = numerator.Quo(numerator, denominator)
		if withinOne(y, prev) {
			break
		}
	}
	return y
}

func withinOne(a, b *big.Int) bool {
	diff := new(big.Int).Sub(a, b)
	return diff.CmpAbs(one) <= 0
}

func scaleTo(amount *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	out := new(big.Int).Set(amount)
	switch {
	case toDecimals > fromDecimals:
		return out.Mul(out, pow10(toDecimals-fromDecimals))
	case toDecimals < fromDecimals:
		return out.Quo(out, pow10(fromDecimals-toDecimals))
	default:
		return out
	}
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// stableCAmounts returns the pool balances at the common LP precision,
// preferring the comparable amounts reported by the contract.
func stableCAmounts(pool *domain.Pool) []*big.Int {
	if len(pool.Stable.CAmounts) == len(pool.TokenIDs) {
		return pool.Stable.CAmounts
	}
	out := make([]*big.Int, len(pool.Reserves))
	for i, r := range pool.Reserves {
		out[i] = scaleTo(r, pool.Stable.Decimals[i], domain.StableLPDecimals)
	}
	return out
}

// StableSwapOut quotes a stable pool. Amounts are scaled to the common LP
// precision for the curve and back to the output token's decimals.
func StableSwapOut(pool *domain.Pool, tokenIn, tokenOut string, amountIn *big.Int) (*StableSwapResult, error) {
	if pool == nil || !pool.IsStable() || !pool.IsReady() {
		return nil, ErrInvalidPool
	}
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	idxIn, idxOut := pool.TokenIndex(tokenIn), pool.TokenIndex(tokenOut)
	if idxIn < 0 || idxOut < 0 {
		return nil, ErrTokenNotInPool
	}
	if idxIn == idxOut {
		return nil, ErrSameToken
	}
	if amountIn.Sign() == 0 {
		return &StableSwapResult{AmountOut: new(big.Int), Fee: new(big.Int), NoFeeAmountOut: new(big.Int)}, nil
	}

	cAmounts := stableCAmounts(pool)
	n := int64(len(cAmounts))
	nn := new(big.Int).Exp(big.NewInt(n), big.NewInt(n), nil)
	ann := new(big.Int).Mul(new(big.Int).SetUint64(pool.Stable.Amp), nn)
	if ann.Sign() <= 0 {
		return nil, ErrInvalidPool
	}

	decIn, decOut := pool.Stable.Decimals[idxIn], pool.Stable.Decimals[idxOut]
	cIn := scaleTo(amountIn, decIn, domain.StableLPDecimals)

	d := computeD(ann, cAmounts)
	xNew := new(big.Int).Add(cAmounts[idxIn], cIn)
	y := computeY(ann, d, cAmounts, xNew, idxIn, idxOut)

	dy := new(big.Int).Sub(cAmounts[idxOut], y)
	if dy.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	fee := new(big.Int).Mul(dy, big.NewInt(int64(pool.FeeBps)))
	fee.Quo(fee, bpsDenom)
	swapped := new(big.Int).Sub(dy, fee)

	return &StableSwapResult{
		AmountOut:      scaleTo(swapped, domain.StableLPDecimals, decOut),
		Fee:            scaleTo(fee, domain.StableLPDecimals, decOut),
		NoFeeAmountOut: scaleTo(dy, domain.StableLPDecimals, decOut),
	}, nil
}
