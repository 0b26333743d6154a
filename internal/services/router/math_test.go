package router

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAmountOut(t *testing.T) {
	tests := []struct {
		name     string
		amountIn *big.Int
		rIn      *big.Int
		rOut     *big.Int
		fee      uint32
		want     string
		wantErr  error
	}{
		{"balanced pool 30bps", e18(10), e18(100), e18(100), 30, "9066108938801491315", nil},
		{"no fee", big.NewInt(100), big.NewInt(1000), big.NewInt(1000), 0, "90", nil},
		{"zero input", big.NewInt(0), e18(1), e18(1), 30, "0", nil},
		{"empty reserve", e18(1), big.NewInt(0), e18(1), 30, "", ErrInsufficientLiquidity},
		{"fee at divisor", e18(1), e18(1), e18(1), 10000, "", ErrInvalidPool},
		{"negative input", big.NewInt(-1), e18(1), e18(1), 30, "", ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := GetAmountOut(tt.amountIn, tt.rIn, tt.rOut, tt.fee)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestGetAmountOutFallsBackOnOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	want := getAmountOutBig(huge, huge, huge, 30)

	out, err := GetAmountOut(huge, huge, huge, 30)
	require.NoError(t, err)
	assert.Equal(t, want.String(), out.String())

	_, ok := getAmountOutU256(huge, huge, huge, 30)
	assert.False(t, ok)
}

func TestStableSwapOut(t *testing.T) {
	pool := stableTriPool(1910)

	res, err := StableSwapOut(pool, usdt, usdc, e6(1000))
	require.NoError(t, err)
	assert.Equal(t, "999499537", res.AmountOut.String())
	assert.Equal(t, "999999537", res.NoFeeAmountOut.String())
	assert.Equal(t, "499999", res.Fee.String())

	// 6 -> 18 decimals keeps the curve price close to one
	res, err = StableSwapOut(pool, usdt, dai, e6(1000))
	require.NoError(t, err)
	assert.True(t, res.AmountOut.Cmp(e18(999)) > 0)
	assert.True(t, res.AmountOut.Cmp(e18(1000)) < 0)
	assert.True(t, res.NoFeeAmountOut.Cmp(res.AmountOut) > 0)
}

func TestStableSwapOutErrors(t *testing.T) {
	pool := stableTriPool(1910)

	_, err := StableSwapOut(pool, usdt, "wrap.near", e6(1))
	assert.ErrorIs(t, err, ErrTokenNotInPool)

	_, err = StableSwapOut(pool, usdt, usdt, e6(1))
	assert.ErrorIs(t, err, ErrSameToken)

	_, err = StableSwapOut(simplePool(1, usdt, usdc, e6(1), e6(1), 30), usdt, usdc, e6(1))
	assert.ErrorIs(t, err, ErrInvalidPool)

	res, err := StableSwapOut(pool, usdt, usdc, big.NewInt(0))
	require.NoError(t, err)
	assert.Zero(t, res.AmountOut.Sign())
}

func TestStableSwapOutRejectsEmptyComparableAmounts(t *testing.T) {
	tests := []struct {
		name string
		c    *big.Int
	}{
		{name: "zero", c: big.NewInt(0)},
		{name: "nil", c: nil},
		{name: "negative", c: big.NewInt(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := stableTriPool(1910)
			pool.Stable.CAmounts[2] = tt.c
			assert.False(t, pool.IsReady())

			assert.NotPanics(t, func() {
				_, err := StableSwapOut(pool, usdt, usdc, e6(10))
				assert.ErrorIs(t, err, ErrInvalidPool)
			})
		})
	}
}

func TestComputeDBalancedPool(t *testing.T) {
	c := []*big.Int{e18(1_000_000), e18(1_000_000), e18(1_000_000)}
	ann := big.NewInt(240 * 27)
	assert.Equal(t, e18(3_000_000).String(), computeD(ann, c).String())
	assert.Zero(t, computeD(ann, []*big.Int{big.NewInt(0), big.NewInt(0)}).Sign())
}

func BenchmarkGetAmountOut(b *testing.B) {
	in, r := e18(10), e18(1_000_000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = GetAmountOut(in, r, r, 30)
	}
}

func BenchmarkStableSwapOut(b *testing.B) {
	pool := stableTriPool(1910)
	in := e6(1000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = StableSwapOut(pool, usdt, usdc, in)
	}
}
