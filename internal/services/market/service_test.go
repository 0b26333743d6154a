package market

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/domain"
)

type fakeSource struct {
	mu        sync.Mutex
	pools     []*domain.Pool
	stable    map[uint64]*domain.Pool
	err       error
	gate      chan struct{}
	poolCalls atomic.Int32
	metaCalls atomic.Int32
	stableHit atomic.Int32
}

func (f *fakeSource) GetAllPools(ctx context.Context) ([]*domain.Pool, error) {
	f.poolCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]*domain.Pool(nil), f.pools...), nil
}

func (f *fakeSource) GetPool(ctx context.Context, id uint64) (*domain.Pool, error) {
	for _, p := range f.pools {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrPoolNotFound
}

func (f *fakeSource) GetStablePool(ctx context.Context, id uint64) (*domain.Pool, error) {
	f.stableHit.Add(1)
	if p, ok := f.stable[id]; ok {
		return p, nil
	}
	return nil, ErrPoolNotFound
}

func (f *fakeSource) GetStablePools(ctx context.Context, ids []uint64) ([]*domain.Pool, error) {
	out := make([]*domain.Pool, 0, len(ids))
	for _, id := range ids {
		p, err := f.GetStablePool(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeSource) FtMetadata(ctx context.Context, tokenID string) (domain.Token, error) {
	f.metaCalls.Add(1)
	return domain.Token{ID: tokenID, Symbol: "TKN", Decimals: 18}, nil
}

type memStore struct {
	mu    sync.Mutex
	saved *domain.PoolSnapshot
	saves int
}

func (m *memStore) SaveSnapshot(s *domain.PoolSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = s
	m.saves++
	return nil
}

func (m *memStore) LoadSnapshot() (*domain.PoolSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, errors.New("empty")
	}
	return m.saved, nil
}

func simple(id uint64) *domain.Pool {
	return &domain.Pool{
		ID:       id,
		Kind:     domain.PoolKindSimple,
		TokenIDs: []string{"a.near", "b.near"},
		Reserves: []*big.Int{big.NewInt(100), big.NewInt(100)},
		FeeBps:   30,
	}
}

func stablePool(id uint64) *domain.Pool {
	return &domain.Pool{
		ID:       id,
		Kind:     domain.PoolKindStable,
		TokenIDs: []string{"usdt.near", "usdc.near"},
		Reserves: []*big.Int{big.NewInt(100), big.NewInt(100)},
		FeeBps:   5,
		Stable: &domain.StableData{
			Decimals: []uint8{6, 6},
			CAmounts: []*big.Int{big.NewInt(1), big.NewInt(1)},
			Amp:      240,
		},
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(src *fakeSource, store SnapshotStore) (*Service, *testClock) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	s := NewService(src, store, Options{TTL: 20 * time.Second, StablePoolIDs: []uint64{5}})
	s.SetClock(clock.Now)
	return s, clock
}

func TestPoolsCachesForTTL(t *testing.T) {
	src := &fakeSource{pools: []*domain.Pool{simple(1)}, stable: map[uint64]*domain.Pool{5: stablePool(5)}}
	s, clock := newTestService(src, nil)
	ctx := context.Background()

	first, err := s.Pools(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)
	assert.Len(t, first.Pools, 2, "stable pools are merged into the snapshot")

	clock.Advance(10 * time.Second)
	again, err := s.Pools(ctx, false)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int32(1), src.poolCalls.Load())

	forced, err := s.Pools(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), forced.Version)

	clock.Advance(21 * time.Second)
	expired, err := s.Pools(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), expired.Version)
	assert.Equal(t, int32(3), src.poolCalls.Load())
}

func TestPoolsCoalescesConcurrentRefreshes(t *testing.T) {
	src := &fakeSource{pools: []*domain.Pool{simple(1)}, stable: map[uint64]*domain.Pool{5: stablePool(5)}, gate: make(chan struct{})}
	s, _ := newTestService(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Pools(context.Background(), true)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.poolCalls.Load())
}

func TestPoolsServesStaleSnapshotOnFailure(t *testing.T) {
	src := &fakeSource{pools: []*domain.Pool{simple(1)}, stable: map[uint64]*domain.Pool{5: stablePool(5)}}
	s, clock := newTestService(src, nil)
	ctx := context.Background()

	first, err := s.Pools(ctx, false)
	require.NoError(t, err)

	src.mu.Lock()
	src.err = errors.New("rpc down")
	src.mu.Unlock()
	clock.Advance(time.Minute)

	stale, err := s.Pools(ctx, false)
	require.NoError(t, err)
	assert.Same(t, first, stale)

	_, err = s.Pools(ctx, true)
	assert.Error(t, err, "a forced refresh reports the failure")
}

func TestWarmStartAndPersist(t *testing.T) {
	store := &memStore{saved: &domain.PoolSnapshot{Version: 4, Pools: []*domain.Pool{simple(9)}}}
	src := &fakeSource{pools: []*domain.Pool{simple(1)}, stable: map[uint64]*domain.Pool{5: stablePool(5)}}
	s, _ := newTestService(src, store)

	s.loadWarmSnapshot()
	p, err := s.GetPool(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), p.ID)

	s.persist()
	assert.Equal(t, 0, store.saves, "the warm snapshot is already on disk")

	snap, err := s.Pools(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Version, "versions continue after the persisted one")

	s.persist()
	assert.Equal(t, 1, store.saves)
	assert.Same(t, snap, store.saved)
}

func TestGetStablePoolCaches(t *testing.T) {
	src := &fakeSource{stable: map[uint64]*domain.Pool{5: stablePool(5)}}
	s, clock := newTestService(src, nil)
	ctx := context.Background()

	p, err := s.GetStablePool(ctx, 5, false)
	require.NoError(t, err)
	assert.True(t, p.IsStable())
	_, err = s.GetStablePool(ctx, 5, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.stableHit.Load())

	_, err = s.GetStablePool(ctx, 5, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.stableHit.Load())

	clock.Advance(30 * time.Second)
	_, err = s.GetStablePool(ctx, 5, false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.stableHit.Load())

	_, err = s.GetStablePool(ctx, 77, false)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestGetTokenCaches(t *testing.T) {
	src := &fakeSource{}
	s, _ := newTestService(src, nil)

	for i := 0; i < 3; i++ {
		tok, err := s.GetToken(context.Background(), "wrap.near")
		require.NoError(t, err)
		assert.Equal(t, "wrap.near", tok.ID)
	}
	assert.Equal(t, int32(1), src.metaCalls.Load())
}

func TestMergeStablePools(t *testing.T) {
	plain := stablePool(5)
	plain.Stable = nil
	merged := mergeStablePools([]*domain.Pool{simple(1), plain}, []*domain.Pool{stablePool(5), stablePool(6)})
	require.Len(t, merged, 3)
	assert.True(t, merged[1].IsStable())
	assert.Equal(t, uint64(6), merged[2].ID)
}
