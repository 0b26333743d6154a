package persistence

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
)

const (
	STORAGE_SERVICE = "persistence-storage"

	PoolsBucket   = "pools"
	PendingBucket = "pending_txs"
	MetaBucket    = "meta"

	snapshotVersionKey = "snapshot_version"

	DefaultDBPath = "./data/swap-engine.db"
)

var ErrNotFound = errors.New("not found")

type StoredPool struct {
	ID                uint64            `json:"id"`
	Kind              uint8             `json:"kind"`
	TokenIDs          []string          `json:"tokenIds"`
	Reserves          []string          `json:"reserves"`
	FeeBps            uint32            `json:"feeBps"`
	SharesTotalSupply string            `json:"sharesTotalSupply"`
	Stable            *StoredStableData `json:"stable,omitempty"`
}

type StoredStableData struct {
	Decimals []uint8  `json:"decimals"`
	CAmounts []string `json:"cAmounts"`
	Amp      uint64   `json:"amp"`
}

// Storage keeps the last pool snapshot and the pending transactions. With
// persistence disabled every write is dropped and every read is empty.
type Storage struct {
	container.BaseDIInstance

	mu     sync.Mutex
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewStorage(dbPath string) (*Storage, error) {
	s := &Storage{}
	if err := s.open(dbPath); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) open(dbPath string) error {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database dir: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return fmt.Errorf("failed to open database at %s", dbPath)
	}
	s.db = db
	s.dbPath = dbPath

	log.Info().Str("path", dbPath).Msg("[storage] opened database")
	return nil
}

func (s *Storage) ID() string {
	return STORAGE_SERVICE
}

func (s *Storage) Configure(c container.IContainer) error {
	cfg := c.GetConfig(config.STORAGE_CONFIG_KEY).(*config.StorageConfig)
	if !cfg.PersistenceEnabled {
		log.Info().Msg("[storage] persistence disabled")
		return nil
	}
	return s.open(cfg.DBPath)
}

func (s *Storage) Start() error {
	return nil
}

func (s *Storage) Stop() error {
	return s.Close()
}

func (s *Storage) Enabled() bool {
	return s.db != nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// SaveSnapshot writes every pool of the snapshot in one batch.
func (s *Storage) SaveSnapshot(snapshot *domain.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil || snapshot == nil || len(snapshot.Pools) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	for _, pool := range snapshot.Pools {
		data, err := sonic.Marshal(poolToStored(pool))
		if err != nil {
			return fmt.Errorf("failed to marshal pool %d: %w", pool.ID, err)
		}
		if err := batch.Add(setOp(PoolsBucket, poolKey(pool.ID), data)); err != nil {
			return fmt.Errorf("failed to add pool %d to batch: %w", pool.ID, err)
		}
	}
	if err := batch.Add(setOp(MetaBucket, snapshotVersionKey, []byte(strconv.FormatUint(snapshot.Version, 10)))); err != nil {
		return err
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", len(snapshot.Pools)).Msg("[storage] failed to execute batch")
		return err
	}

	log.Debug().Int("count", len(snapshot.Pools)).Uint64("version", snapshot.Version).Msg("[storage] saved pool snapshot")
	return nil
}

// LoadSnapshot returns the persisted pools ordered by id.
func (s *Storage) LoadSnapshot() (*domain.PoolSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotFound
	}

	data, err := s.db.List(PoolsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}

	pools := make([]*domain.Pool, 0, len(data))
	failed := 0
	for key, value := range data {
		var stored StoredPool
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("key", key).Err(err).Msg("[storage] failed to unmarshal pool, skipping")
			failed++
			continue
		}
		pool, err := storedToPool(&stored)
		if err != nil {
			log.Error().Str("key", key).Err(err).Msg("[storage] failed to convert stored pool, skipping")
			failed++
			continue
		}
		pools = append(pools, pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })

	var version uint64
	if meta, err := s.db.List(MetaBucket); err == nil {
		version, _ = strconv.ParseUint(string(meta[snapshotVersionKey]), 10, 64)
	}

	log.Info().
		Int("total_in_db", len(data)).
		Int("loaded", len(pools)).
		Int("failed", failed).
		Msg("[storage] pool snapshot loaded")
	return &domain.PoolSnapshot{Version: version, Pools: pools}, nil
}

func (s *Storage) SavePending(tx domain.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	data, err := sonic.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal pending tx: %w", err)
	}
	return s.db.Set(PendingBucket, []byte(tx.Hash), data)
}

// MarkResolved flags a pending transaction as resolved. Unknown hashes are
// recorded as resolved so that a restart does not resolve them again.
func (s *Storage) MarkResolved(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}

	tx := domain.PendingTransaction{Hash: hash}
	if data, err := s.db.List(PendingBucket); err == nil {
		if raw, ok := data[hash]; ok {
			_ = sonic.Unmarshal(raw, &tx)
		}
	}
	tx.Resolved = true

	raw, err := sonic.Marshal(tx)
	if err != nil {
		return err
	}
	return s.db.Set(PendingBucket, []byte(hash), raw)
}

// LoadPending returns the stored transactions, oldest first.
func (s *Storage) LoadPending() ([]domain.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, nil
	}

	data, err := s.db.List(PendingBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending txs: %w", err)
	}
	out := make([]domain.PendingTransaction, 0, len(data))
	for hash, value := range data {
		var tx domain.PendingTransaction
		if err := sonic.Unmarshal(value, &tx); err != nil {
			log.Warn().Str("hash", hash).Err(err).Msg("[storage] failed to unmarshal pending tx, skipping")
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func setOp(bucket, key string, value []byte) *boltdb.WriteOperation {
	v := value
	return &boltdb.WriteOperation{
		Bucket: []byte(bucket),
		Key:    []byte(key),
		Value:  &v,
		Op:     boltdb.OpSet,
	}
}

func poolKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func amountsToStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.String()
	}
	return out
}

func stringsToAmounts(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", v)
		}
		out[i] = n
	}
	return out, nil
}

func poolToStored(pool *domain.Pool) *StoredPool {
	shares := "0"
	if pool.SharesTotalSupply != nil {
		shares = pool.SharesTotalSupply.String()
	}
	stored := &StoredPool{
		ID:                pool.ID,
		Kind:              uint8(pool.Kind),
		TokenIDs:          pool.TokenIDs,
		Reserves:          amountsToStrings(pool.Reserves),
		FeeBps:            pool.FeeBps,
		SharesTotalSupply: shares,
	}
	if pool.Stable != nil {
		stored.Stable = &StoredStableData{
			Decimals: pool.Stable.Decimals,
			CAmounts: amountsToStrings(pool.Stable.CAmounts),
			Amp:      pool.Stable.Amp,
		}
	}
	return stored
}

func storedToPool(stored *StoredPool) (*domain.Pool, error) {
	if len(stored.TokenIDs) != len(stored.Reserves) {
		return nil, fmt.Errorf("pool %d: %d tokens but %d reserves", stored.ID, len(stored.TokenIDs), len(stored.Reserves))
	}
	reserves, err := stringsToAmounts(stored.Reserves)
	if err != nil {
		return nil, err
	}
	shares, ok := new(big.Int).SetString(stored.SharesTotalSupply, 10)
	if !ok {
		shares = new(big.Int)
	}

	pool := &domain.Pool{
		ID:                stored.ID,
		Kind:              domain.PoolKind(stored.Kind),
		TokenIDs:          stored.TokenIDs,
		Reserves:          reserves,
		FeeBps:            stored.FeeBps,
		SharesTotalSupply: shares,
	}
	if stored.Stable != nil {
		cAmounts, err := stringsToAmounts(stored.Stable.CAmounts)
		if err != nil {
			return nil, err
		}
		pool.Stable = &domain.StableData{
			Decimals: stored.Stable.Decimals,
			CAmounts: cAmounts,
			Amp:      stored.Stable.Amp,
		}
	}
	return pool, nil
}
