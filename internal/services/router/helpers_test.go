package router

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/hxuan190/swap-engine/internal/domain"
)

const (
	tokenA = "a.near"
	tokenB = "b.near"
	tokenC = "c.near"
	usdt   = "usdt.tether-token.near"
	usdc   = "usdc.near"
	dai    = "dai.near"
)

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), pow10(18))
}

func e6(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), pow10(6))
}

func simplePool(id uint64, a, b string, ra, rb *big.Int, fee uint32) *domain.Pool {
	return &domain.Pool{
		ID:                id,
		Kind:              domain.PoolKindSimple,
		TokenIDs:          []string{a, b},
		Reserves:          []*big.Int{ra, rb},
		FeeBps:            fee,
		SharesTotalSupply: big.NewInt(1),
	}
}

// stableTriPool is a balanced USDT/USDC/DAI pool holding one million of each.
func stableTriPool(id uint64) *domain.Pool {
	c := e18(1_000_000)
	return &domain.Pool{
		ID:       id,
		Kind:     domain.PoolKindStable,
		TokenIDs: []string{usdt, usdc, dai},
		Reserves: []*big.Int{e6(1_000_000), e6(1_000_000), e18(1_000_000)},
		FeeBps:   5,
		Stable: &domain.StableData{
			Decimals: []uint8{6, 6, 18},
			CAmounts: []*big.Int{c, new(big.Int).Set(c), new(big.Int).Set(c)},
			Amp:      240,
		},
	}
}

type fakeProvider struct {
	snapshot *domain.PoolSnapshot
	err      error
	calls    atomic.Int32
	refreshs atomic.Int32
}

func newFakeProvider(pools ...*domain.Pool) *fakeProvider {
	return &fakeProvider{snapshot: &domain.PoolSnapshot{Version: 1, Pools: pools}}
}

func (f *fakeProvider) Pools(_ context.Context, refresh bool) (*domain.PoolSnapshot, error) {
	f.calls.Add(1)
	if refresh {
		f.refreshs.Add(1)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeProvider) GetStablePool(_ context.Context, id uint64, refresh bool) (*domain.Pool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.snapshot.Pools {
		if p.ID == id && p.IsStable() {
			return p, nil
		}
	}
	return nil, ErrNoPoolFound
}
