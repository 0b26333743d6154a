package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsZeroAmount(t *testing.T) {
	for _, in := range []string{"", " ", "0", "000", "0.", ".0", "0.000", "00.00"} {
		assert.True(t, IsZeroAmount(in), "%q", in)
	}
	for _, in := range []string{"1", "0.1", "10", "0.0001", "1e3"} {
		assert.False(t, IsZeroAmount(in), "%q", in)
	}
}

func TestToNonDivisibleAndBack(t *testing.T) {
	raw, err := ToNonDivisible(18, "10")
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000000", raw.String())

	raw, err = ToNonDivisible(6, "1.2345678")
	require.NoError(t, err)
	assert.Equal(t, "1234567", raw.String(), "extra precision is truncated")

	assert.Equal(t, "1.234567", ToReadable(6, raw))
	assert.Equal(t, "0", ToReadable(6, nil))

	_, err = ToNonDivisible(6, "abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ToNonDivisible(6, "-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPercentLessIsMonotonic(t *testing.T) {
	raw := big.NewInt(9_066_108_938)
	prev := new(big.Int).Set(raw)
	for _, s := range []float64{0, 0.1, 0.5, 1, 3, 10, 50, 100} {
		got := PercentLess(s, raw)
		assert.True(t, got.Cmp(raw) <= 0, "slippage %v exceeds output", s)
		assert.True(t, got.Cmp(prev) <= 0, "slippage %v not monotonic", s)
		prev = got
	}
	assert.Equal(t, "9020778393", PercentLess(0.5, raw).String())
	assert.Equal(t, "0", PercentLess(100, raw).String())
	assert.Equal(t, raw.String(), PercentLess(-3, raw).String())
}

func TestMinAmountOut(t *testing.T) {
	assert.Equal(t, "9.95", MinAmountOut(6, 0.5, "10"))
	assert.Equal(t, "0", MinAmountOut(6, 0.5, ""))
}
