// Package market provides the pool data the router and sessions quote against.
package market

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	container "github.com/thehyperflames/dicontainer-go"
	"golang.org/x/sync/singleflight"

	"github.com/hxuan190/swap-engine/internal/adapters/near"
	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

const (
	MARKET_SERVICE = "market-service"

	stablePoolCacheMaxSize = 64
	tokenCacheMaxSize      = 10000
)

var ErrPoolNotFound = errors.New("pool not found")

// PoolSource is the ledger side of the provider.
type PoolSource interface {
	GetAllPools(ctx context.Context) ([]*domain.Pool, error)
	GetPool(ctx context.Context, id uint64) (*domain.Pool, error)
	GetStablePool(ctx context.Context, id uint64) (*domain.Pool, error)
	GetStablePools(ctx context.Context, ids []uint64) ([]*domain.Pool, error)
	FtMetadata(ctx context.Context, tokenID string) (domain.Token, error)
}

// SnapshotStore persists the pool snapshot for warm starts.
type SnapshotStore interface {
	SaveSnapshot(snapshot *domain.PoolSnapshot) error
	LoadSnapshot() (*domain.PoolSnapshot, error)
}

type Options struct {
	TTL             time.Duration
	StablePoolIDs   []uint64
	PersistInterval time.Duration
}

type Service struct {
	container.BaseDIInstance
	logger *common.ServiceLogger

	source PoolSource
	store  SnapshotStore
	opts   Options
	now    func() time.Time

	mu        sync.RWMutex
	snapshot  *domain.PoolSnapshot
	byID      map[uint64]*domain.Pool
	fetchedAt time.Time
	version   uint64
	persisted uint64

	group       singleflight.Group
	stablePools *common.BoundedLRUCache[uint64, *domain.Pool]
	tokens      *common.BoundedLRUCache[string, domain.Token]

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewService(source PoolSource, store SnapshotStore, opts Options) *Service {
	s := &Service{}
	s.init(source, store, opts)
	return s
}

func (s *Service) init(source PoolSource, store SnapshotStore, opts Options) {
	if opts.TTL <= 0 {
		opts.TTL = config.DefaultRefreshInterval
	}
	s.source = source
	s.store = store
	s.opts = opts
	s.now = time.Now
	s.stablePools = common.NewBoundedTTLCache[uint64, *domain.Pool](stablePoolCacheMaxSize, opts.TTL)
	s.tokens = common.NewBoundedLRUCache[string, domain.Token](tokenCacheMaxSize)
	s.stopCh = make(chan struct{})
	s.logger = common.NewServiceLogger(s)
}

// SetClock replaces the time source of the snapshot and stable pool TTLs.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.stablePools.SetClock(now)
}

func (s *Service) ID() string {
	return MARKET_SERVICE
}

func (s *Service) Configure(c container.IContainer) error {
	swapCfg := c.GetConfig(config.SWAP_CONFIG_KEY).(*config.SwapConfig)
	storageCfg := c.GetConfig(config.STORAGE_CONFIG_KEY).(*config.StorageConfig)
	client := c.Instance(near.NEAR_CLIENT_SERVICE).(*near.Client)
	storage := c.Instance(persistence.STORAGE_SERVICE).(*persistence.Storage)

	var store SnapshotStore
	if storage.Enabled() {
		store = storage
	}
	s.init(client, store, Options{
		TTL:             swapCfg.RefreshInterval,
		StablePoolIDs:   swapCfg.StablePoolIDs,
		PersistInterval: time.Duration(storageCfg.PersistInterval) * time.Second,
	})
	return nil
}

func (s *Service) Start() error {
	s.loadWarmSnapshot()
	if s.store != nil && s.opts.PersistInterval > 0 {
		s.wg.Add(1)
		go s.persistLoop()
	}
	return nil
}

func (s *Service) Stop() error {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
	s.persist()
	return nil
}

// loadWarmSnapshot serves the persisted pools until the first fetch. The
// snapshot is marked stale so the first query still hits the ledger.
func (s *Service) loadWarmSnapshot() {
	if s.store == nil {
		return
	}
	snapshot, err := s.store.LoadSnapshot()
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("[market] failed to load persisted pools")
		}
		return
	}

	s.mu.Lock()
	s.version = snapshot.Version
	s.persisted = snapshot.Version
	s.setSnapshotLocked(snapshot, time.Time{})
	s.mu.Unlock()
	s.logger.Info().Int("pools", len(snapshot.Pools)).Uint64("version", snapshot.Version).Msg("[market] warm start from persisted pools")
}

func (s *Service) persistLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.persist()
		}
	}
}

func (s *Service) persist() {
	if s.store == nil {
		return
	}
	s.mu.RLock()
	snapshot, persisted := s.snapshot, s.persisted
	s.mu.RUnlock()
	if snapshot == nil || snapshot.Version == persisted {
		return
	}
	if err := s.store.SaveSnapshot(snapshot); err != nil {
		s.logger.Error().Err(err).Msg("[market] failed to persist pools")
		return
	}
	s.mu.Lock()
	if snapshot.Version > s.persisted {
		s.persisted = snapshot.Version
	}
	s.mu.Unlock()
}

func (s *Service) setSnapshotLocked(snapshot *domain.PoolSnapshot, fetchedAt time.Time) {
	byID := make(map[uint64]*domain.Pool, len(snapshot.Pools))
	stable := 0
	for _, p := range snapshot.Pools {
		byID[p.ID] = p
		if p.IsStable() {
			stable++
		}
	}
	s.snapshot = snapshot
	s.byID = byID
	s.fetchedAt = fetchedAt
	metrics.PoolCount.Set(float64(len(snapshot.Pools)))
	metrics.StablePoolCount.Set(float64(stable))
}

// Pools returns the pool universe. A cached snapshot younger than the TTL is
// returned unless refresh is set; concurrent fetches are coalesced.
func (s *Service) Pools(ctx context.Context, refresh bool) (*domain.PoolSnapshot, error) {
	s.mu.RLock()
	snapshot, fetchedAt := s.snapshot, s.fetchedAt
	s.mu.RUnlock()

	if !refresh && snapshot != nil && !fetchedAt.IsZero() && s.now().Sub(fetchedAt) < s.opts.TTL {
		metrics.PoolCacheHits.Inc()
		return snapshot, nil
	}
	metrics.PoolCacheMisses.Inc()

	v, err, _ := s.group.Do("pools", func() (any, error) {
		return s.fetchPools(context.WithoutCancel(ctx))
	})
	if err != nil {
		if !refresh && snapshot != nil {
			s.logger.Warn().Err(err).Msg("[market] pool refresh failed, serving stale snapshot")
			return snapshot, nil
		}
		return nil, err
	}
	return v.(*domain.PoolSnapshot), nil
}

func (s *Service) fetchPools(ctx context.Context) (*domain.PoolSnapshot, error) {
	start := time.Now()
	pools, err := s.source.GetAllPools(ctx)
	if err != nil {
		metrics.PoolRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(s.opts.StablePoolIDs) > 0 {
		stable, err := s.source.GetStablePools(ctx, s.opts.StablePoolIDs)
		if err != nil {
			metrics.PoolRefreshes.WithLabelValues("error").Inc()
			return nil, err
		}
		pools = mergeStablePools(pools, stable)
		for _, p := range stable {
			s.stablePools.Set(p.ID, p)
		}
	}

	s.mu.Lock()
	s.version++
	snapshot := &domain.PoolSnapshot{Version: s.version, Pools: pools}
	s.setSnapshotLocked(snapshot, s.now())
	s.mu.Unlock()

	metrics.PoolRefreshes.WithLabelValues("ok").Inc()
	metrics.PoolRefreshDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug().Int("pools", len(pools)).Uint64("version", snapshot.Version).Msg("[market] pools refreshed")
	return snapshot, nil
}

// mergeStablePools replaces the get_pools view of each stable pool with the
// full stable-swap view.
func mergeStablePools(pools, stable []*domain.Pool) []*domain.Pool {
	byID := make(map[uint64]*domain.Pool, len(stable))
	for _, p := range stable {
		byID[p.ID] = p
	}
	out := make([]*domain.Pool, 0, len(pools)+len(stable))
	for _, p := range pools {
		if sp, ok := byID[p.ID]; ok {
			out = append(out, sp)
			delete(byID, p.ID)
			continue
		}
		out = append(out, p)
	}
	for _, p := range stable {
		if _, ok := byID[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// GetPool returns a pool from the current snapshot, falling back to the ledger.
func (s *Service) GetPool(ctx context.Context, id uint64) (*domain.Pool, error) {
	s.mu.RLock()
	p, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}
	pool, err := s.source.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// GetStablePool returns the full stable-swap view of a pool, cached for the TTL.
func (s *Service) GetStablePool(ctx context.Context, id uint64, refresh bool) (*domain.Pool, error) {
	if !refresh {
		if p, ok := s.stablePools.Get(id); ok {
			return p, nil
		}
	}
	v, err, _ := s.group.Do("stable:"+strconv.FormatUint(id, 10), func() (any, error) {
		pool, err := s.source.GetStablePool(context.WithoutCancel(ctx), id)
		if err != nil {
			return nil, err
		}
		if pool == nil || !pool.IsStable() {
			return nil, ErrPoolNotFound
		}
		s.stablePools.Set(id, pool)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Pool), nil
}

// GetToken returns token metadata. Metadata is immutable so entries never expire.
func (s *Service) GetToken(ctx context.Context, id string) (domain.Token, error) {
	if tok, ok := s.tokens.Get(id); ok {
		return tok, nil
	}
	v, err, _ := s.group.Do("token:"+id, func() (any, error) {
		return s.source.FtMetadata(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return domain.Token{}, err
	}
	tok := v.(domain.Token)
	s.tokens.Set(id, tok)
	metrics.TokenCacheSize.Set(float64(s.tokens.Size()))
	return tok, nil
}

// Stats returns the snapshot size and version.
func (s *Service) Stats() (int, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return 0, 0
	}
	return len(s.snapshot.Pools), s.snapshot.Version
}
