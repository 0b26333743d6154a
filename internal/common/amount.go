package common

import (
	"errors"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")

	onlyZeros = regexp.MustCompile(`^0*\.?0*$`)
	hundred   = decimal.NewFromInt(100)
)

// IsZeroAmount reports whether a readable amount is blank or made of zeros only.
func IsZeroAmount(amount string) bool {
	amount = strings.TrimSpace(amount)
	return amount == "" || onlyZeros.MatchString(amount)
}

// ToNonDivisible converts a readable amount into raw token units, dropping
// precision beyond decimals.
func ToNonDivisible(decimals uint8, amount string) (*big.Int, error) {
	if IsZeroAmount(amount) {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// ToReadable converts raw token units into a readable amount string.
func ToReadable(decimals uint8, raw *big.Int) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// PercentLess returns raw reduced by percent, rounded down. percent is clamped
// to [0, 100].
func PercentLess(percent float64, raw *big.Int) *big.Int {
	if raw == nil {
		return new(big.Int)
	}
	p := decimal.NewFromFloat(percent)
	if p.Sign() < 0 {
		p = decimal.Zero
	}
	if p.GreaterThan(hundred) {
		p = hundred
	}
	keep := hundred.Sub(p)
	return decimal.NewFromBigInt(raw, 0).Mul(keep).Shift(-2).Floor().BigInt()
}

// MinAmountOut applies a slippage tolerance to a readable output amount.
func MinAmountOut(decimals uint8, slippage float64, tokenOutAmount string) string {
	raw, err := ToNonDivisible(decimals, tokenOutAmount)
	if err != nil {
		return "0"
	}
	return ToReadable(decimals, PercentLess(slippage, raw))
}
