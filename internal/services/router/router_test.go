package router

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/domain"
)

func newTestRouter(pools ...*domain.Pool) *Router {
	g := NewGraph(&domain.PoolSnapshot{Version: 1, Pools: pools})
	return NewRouter(g, testCfg)
}

func sumAmountIn(legs []domain.RouteLeg) *big.Int {
	total := new(big.Int)
	for _, l := range legs {
		total.Add(total, l.AmountIn)
	}
	return total
}

func TestGraphSkipsUnreadyPools(t *testing.T) {
	empty := simplePool(2, tokenA, tokenB, big.NewInt(0), e18(1), 30)
	g := NewGraph(&domain.PoolSnapshot{Version: 7, Pools: []*domain.Pool{
		simplePool(1, tokenA, tokenB, e18(1), e18(1), 30),
		empty,
		stableTriPool(1910),
	}})

	assert.Equal(t, uint64(7), g.Version())
	assert.Equal(t, 2, g.PoolCount())
	assert.Len(t, g.GetDirectRoutesForPair(tokenA, tokenB), 1)
	assert.Len(t, g.GetDirectRoutesForPair(tokenB, tokenA), 1)
	assert.Len(t, g.GetDirectRoutesForPair(usdt, dai), 1)
	assert.Empty(t, g.GetDirectSimplePools(usdt, dai))
	assert.Equal(t, []string{dai, usdc}, g.Neighbors(usdt))
	assert.Equal(t, []string{dai}, g.Intermediates(usdt, usdc))
}

func TestParallelRouteSinglePool(t *testing.T) {
	r := newTestRouter(simplePool(1, tokenA, tokenB, e18(100), e18(100), 30))

	est, err := r.ParallelRoute(tokenA, tokenB, e18(10))
	require.NoError(t, err)
	assert.Equal(t, domain.PoolModeParallel, est.Mode)
	require.Len(t, est.Legs, 1)
	assert.Equal(t, "9066108938801491315", est.AmountOut.String())
	assert.Equal(t, 30.0, est.AverageFeeBps)
	assert.Equal(t, domain.PoolModeParallel, est.Legs[0].Mode)
}

func TestParallelRouteSplitsAcrossPools(t *testing.T) {
	r := newTestRouter(
		simplePool(1, tokenA, tokenB, e18(1000), e18(1000), 30),
		simplePool(2, tokenA, tokenB, e18(1000), e18(1000), 30),
	)

	est, err := r.ParallelRoute(tokenA, tokenB, e18(100))
	require.NoError(t, err)
	require.Len(t, est.Legs, 2)
	assert.Equal(t, "94965947516311854074", est.AmountOut.String())
	assert.Equal(t, e18(100).String(), sumAmountIn(est.Legs).String())
	assert.Equal(t, est.AmountOut.String(), domain.ExpectedOutput(est.Legs, tokenB).String())
}

func TestParallelRouteThreeWayKeepsInputTotal(t *testing.T) {
	r := newTestRouter(
		simplePool(1, tokenA, tokenB, e18(1000), e18(1000), 30),
		simplePool(2, tokenA, tokenB, e18(1000), e18(1000), 20),
		simplePool(3, tokenA, tokenB, e18(1000), e18(1000), 25),
	)
	amount := new(big.Int).Add(e18(300), big.NewInt(7))

	est, err := r.ParallelRoute(tokenA, tokenB, amount)
	require.NoError(t, err)
	assert.Len(t, est.Legs, 3)
	assert.Equal(t, amount.String(), sumAmountIn(est.Legs).String())
	assert.Greater(t, est.AverageFeeBps, 20.0)
	assert.Less(t, est.AverageFeeBps, 30.0)

	single, err := GetAmountOut(amount, e18(1000), e18(1000), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, est.AmountOut.Cmp(single))
}

func TestParallelRouteIgnoresStablePools(t *testing.T) {
	r := newTestRouter(stableTriPool(1910))
	_, err := r.ParallelRoute(usdt, usdc, e6(10))
	assert.ErrorIs(t, err, ErrNoPoolFound)
}

func TestStableRouteRequiresStableTokens(t *testing.T) {
	pool := stableTriPool(1910)
	r := NewRouter(NewGraph(&domain.PoolSnapshot{Pools: []*domain.Pool{pool}}), Config{MaxSplits: 3, StableTokenIDs: []string{usdt}, StablePoolIDs: []uint64{1910}})

	_, err := r.StableRoute(usdt, usdc, e6(10))
	assert.ErrorIs(t, err, ErrNoRoute)

	est, err := newTestRouter(pool).StableRoute(usdt, usdc, e6(1000))
	require.NoError(t, err)
	assert.Equal(t, domain.PoolModeStable, est.Mode)
	assert.Equal(t, 5.0, est.AverageFeeBps)
	assert.Equal(t, "999499537", est.AmountOut.String())
}

func TestStableRouteUsesConfiguredPoolsOnly(t *testing.T) {
	configured := stableTriPool(1910)
	other := stableTriPool(7)
	other.FeeBps = 1

	est, err := newTestRouter(configured, other).StableRoute(usdt, usdc, e6(1000))
	require.NoError(t, err)
	require.Len(t, est.Legs, 1)
	assert.Equal(t, uint64(1910), est.Legs[0].PoolID)

	_, err = newTestRouter(other).StableRoute(usdt, usdc, e6(1000))
	assert.ErrorIs(t, err, ErrNoPoolFound)

	_, err = newTestRouter(other).SmartRoute(usdt, dai, e6(1000))
	assert.ErrorIs(t, err, ErrNoRoute, "unconfigured stable pools are not hops either")
}

func TestSmartRouteTwoHops(t *testing.T) {
	r := newTestRouter(
		simplePool(1, tokenA, tokenB, e18(1000), e18(1000), 30),
		simplePool(2, tokenB, tokenC, e18(1000), e18(1000), 20),
		simplePool(3, tokenB, tokenC, e18(10), e18(10), 1),
	)

	est, err := r.SmartRoute(tokenA, tokenC, e18(1))
	require.NoError(t, err)
	assert.Equal(t, domain.PoolModeSmart, est.Mode)
	require.Len(t, est.Legs, 2)
	assert.True(t, domain.AllLegsInMode(est.Legs, domain.PoolModeSmart))
	assert.Equal(t, []uint64{1, 2}, est.Legs[0].Route)
	assert.Equal(t, []string{tokenA, tokenB, tokenC}, est.Legs[1].NodeRoute)
	assert.Equal(t, est.Legs[0].EstimateOut, est.Legs[1].AmountIn)
	assert.Equal(t, 50.0, est.AverageFeeBps)

	_, err = r.SmartRoute(tokenA, tokenB, e18(1))
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestIsBetterEstimateTieBreaksOnFee(t *testing.T) {
	cheap := &domain.Estimate{AmountOut: big.NewInt(10), AverageFeeBps: 5}
	pricey := &domain.Estimate{AmountOut: big.NewInt(10), AverageFeeBps: 30}
	more := &domain.Estimate{AmountOut: big.NewInt(11), AverageFeeBps: 100}

	assert.True(t, IsBetterEstimate(cheap, pricey))
	assert.False(t, IsBetterEstimate(pricey, cheap))
	assert.True(t, IsBetterEstimate(more, cheap))
	assert.True(t, IsBetterEstimate(cheap, nil))
	assert.False(t, IsBetterEstimate(nil, cheap))
}

func BenchmarkParallelRouteThreeWay(b *testing.B) {
	r := newTestRouter(
		simplePool(1, tokenA, tokenB, e18(1000), e18(1000), 30),
		simplePool(2, tokenA, tokenB, e18(2000), e18(2000), 20),
		simplePool(3, tokenA, tokenB, e18(500), e18(500), 25),
	)
	amount := e18(300)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = r.ParallelRoute(tokenA, tokenB, amount)
	}
}
