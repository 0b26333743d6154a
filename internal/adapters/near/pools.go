package near

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/swap-engine/internal/domain"
)

// PoolPageSize is the get_pools page size accepted by the exchange contract.
const PoolPageSize = 200

type poolInfo struct {
	PoolKind          string   `json:"pool_kind"`
	TokenAccountIDs   []string `json:"token_account_ids"`
	Amounts           []string `json:"amounts"`
	TotalFee          uint32   `json:"total_fee"`
	SharesTotalSupply string   `json:"shares_total_supply"`
	Amp               uint64   `json:"amp"`
}

type stablePoolInfo struct {
	TokenAccountIDs   []string `json:"token_account_ids"`
	Decimals          []uint8  `json:"decimals"`
	Amounts           []string `json:"amounts"`
	CAmounts          []string `json:"c_amounts"`
	TotalFee          uint32   `json:"total_fee"`
	SharesTotalSupply string   `json:"shares_total_supply"`
	Amp               uint64   `json:"amp"`
}

type ftMetadata struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type storageBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

func parseAmounts(values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("%w: amount %q", ErrUnexpectedResp, v)
		}
		out[i] = n
	}
	return out, nil
}

func parseShares(v string) *big.Int {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

func (p *poolInfo) toDomain(id uint64) (*domain.Pool, error) {
	reserves, err := parseAmounts(p.Amounts)
	if err != nil {
		return nil, err
	}
	kind := domain.PoolKindSimple
	if p.PoolKind == domain.PoolKindStable.String() {
		kind = domain.PoolKindStable
	}
	return &domain.Pool{
		ID:                id,
		Kind:              kind,
		TokenIDs:          p.TokenAccountIDs,
		Reserves:          reserves,
		FeeBps:            p.TotalFee,
		SharesTotalSupply: parseShares(p.SharesTotalSupply),
	}, nil
}

func (p *stablePoolInfo) toDomain(id uint64) (*domain.Pool, error) {
	reserves, err := parseAmounts(p.Amounts)
	if err != nil {
		return nil, err
	}
	cAmounts, err := parseAmounts(p.CAmounts)
	if err != nil {
		return nil, err
	}
	return &domain.Pool{
		ID:                id,
		Kind:              domain.PoolKindStable,
		TokenIDs:          p.TokenAccountIDs,
		Reserves:          reserves,
		FeeBps:            p.TotalFee,
		SharesTotalSupply: parseShares(p.SharesTotalSupply),
		Stable: &domain.StableData{
			Decimals: p.Decimals,
			CAmounts: cAmounts,
			Amp:      p.Amp,
		},
	}, nil
}

func (c *Client) GetNumberOfPools(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.ViewFunction(ctx, c.opts.RefContractID, "get_number_of_pools", nil, &n)
	return n, err
}

// GetPools returns one page of pools. Only simple and stable kinds are kept;
// other pool kinds are skipped.
func (c *Client) GetPools(ctx context.Context, fromIndex, limit uint64) ([]*domain.Pool, error) {
	var infos []poolInfo
	err := c.ViewFunction(ctx, c.opts.RefContractID, "get_pools", map[string]any{
		"from_index": fromIndex,
		"limit":      limit,
	}, &infos)
	if err != nil {
		return nil, err
	}

	pools := make([]*domain.Pool, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		if info.PoolKind != domain.PoolKindSimple.String() && info.PoolKind != domain.PoolKindStable.String() {
			continue
		}
		pool, err := info.toDomain(fromIndex + uint64(i))
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// GetAllPools pages through the full pool universe, fetching pages concurrently.
func (c *Client) GetAllPools(ctx context.Context) ([]*domain.Pool, error) {
	total, err := c.GetNumberOfPools(ctx)
	if err != nil {
		return nil, err
	}

	pages := (total + PoolPageSize - 1) / PoolPageSize
	results := make([][]*domain.Pool, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for page := uint64(0); page < pages; page++ {
		g.Go(func() error {
			pools, err := c.GetPools(gctx, page*PoolPageSize, PoolPageSize)
			if err != nil {
				return err
			}
			results[page] = pools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*domain.Pool, 0, total)
	for _, pools := range results {
		out = append(out, pools...)
	}
	return out, nil
}

func (c *Client) GetPool(ctx context.Context, id uint64) (*domain.Pool, error) {
	var info poolInfo
	if err := c.ViewFunction(ctx, c.opts.RefContractID, "get_pool", map[string]any{"pool_id": id}, &info); err != nil {
		return nil, err
	}
	return info.toDomain(id)
}

func (c *Client) GetStablePool(ctx context.Context, id uint64) (*domain.Pool, error) {
	var info stablePoolInfo
	if err := c.ViewFunction(ctx, c.opts.RefContractID, "get_stable_pool", map[string]any{"pool_id": id}, &info); err != nil {
		return nil, err
	}
	return info.toDomain(id)
}

// GetStablePools fetches the given stable pools concurrently.
func (c *Client) GetStablePools(ctx context.Context, ids []uint64) ([]*domain.Pool, error) {
	var mu sync.Mutex
	out := make([]*domain.Pool, 0, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			pool, err := c.GetStablePool(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, pool)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FtMetadata(ctx context.Context, tokenID string) (domain.Token, error) {
	var meta ftMetadata
	if err := c.ViewFunction(ctx, tokenID, "ft_metadata", nil, &meta); err != nil {
		return domain.Token{}, err
	}
	return domain.Token{ID: tokenID, Symbol: meta.Symbol, Decimals: meta.Decimals}, nil
}

// IsStorageRegistered reports whether accountID holds a storage deposit on the
// token contract.
func (c *Client) IsStorageRegistered(ctx context.Context, tokenID, accountID string) (bool, error) {
	var balance *storageBalance
	if err := c.ViewFunction(ctx, tokenID, "storage_balance_of", map[string]any{"account_id": accountID}, &balance); err != nil {
		return false, err
	}
	return balance != nil && balance.Total != "" && balance.Total != "0", nil
}
