package router

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	container "github.com/thehyperflames/dicontainer-go"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
	"github.com/hxuan190/swap-engine/internal/services/market"
)

const ESTIMATOR_SERVICE = "router-estimator"

// PoolProvider supplies pool state to the estimator.
type PoolProvider interface {
	Pools(ctx context.Context, refresh bool) (*domain.PoolSnapshot, error)
	GetStablePool(ctx context.Context, id uint64, refresh bool) (*domain.Pool, error)
}

type Config struct {
	MaxSplits      int
	StableTokenIDs []string
	// StablePoolIDs bounds the stable pools the best-route search may use.
	StablePoolIDs []uint64
}

// SwapRequest carries a readable input amount in tokenIn units.
type SwapRequest struct {
	TokenIn  domain.Token
	TokenOut domain.Token
	AmountIn string
}

type StableSwapRequest struct {
	SwapRequest
	PoolID uint64
}

type cachedGraph struct {
	snapshot *domain.PoolSnapshot
	graph    *Graph
}

type Estimator struct {
	container.BaseDIInstance
	logger   *common.ServiceLogger
	provider PoolProvider
	cfg      Config

	graph atomic.Pointer[cachedGraph]
}

func NewEstimator(provider PoolProvider, cfg Config) *Estimator {
	e := &Estimator{provider: provider, cfg: cfg}
	e.logger = common.NewServiceLogger(e)
	return e
}

func (e *Estimator) ID() string {
	return ESTIMATOR_SERVICE
}

func (e *Estimator) Configure(c container.IContainer) error {
	e.logger = common.NewServiceLogger(e)
	swapCfg := c.GetConfig(config.SWAP_CONFIG_KEY).(*config.SwapConfig)
	e.provider = c.Instance(market.MARKET_SERVICE).(*market.Service)
	e.cfg = Config{
		MaxSplits:      swapCfg.MaxSplits,
		StableTokenIDs: swapCfg.StableTokenIDs,
		StablePoolIDs:  swapCfg.StablePoolIDs,
	}
	return nil
}

func (e *Estimator) Start() error {
	return nil
}

func (e *Estimator) Stop() error {
	return nil
}

// graphFor returns the routing graph of snapshot, rebuilding it only when the
// snapshot changed.
func (e *Estimator) graphFor(snapshot *domain.PoolSnapshot) *Graph {
	if cached := e.graph.Load(); cached != nil {
		if cached.snapshot == snapshot || (snapshot.Version != 0 && cached.snapshot.Version == snapshot.Version) {
			return cached.graph
		}
	}
	g := NewGraph(snapshot)
	e.graph.Store(&cachedGraph{snapshot: snapshot, graph: g})
	return g
}

func zeroEstimate() *domain.Estimate {
	return &domain.Estimate{
		AmountIn:  new(big.Int),
		AmountOut: new(big.Int),
	}
}

// EstimateSwap returns the best of the parallel, stable and smart routes.
// refresh forces the provider to refetch pools before routing.
func (e *Estimator) EstimateSwap(ctx context.Context, req SwapRequest, refresh bool) (*domain.Estimate, error) {
	start := time.Now()
	est, err := e.estimateSwap(ctx, req, refresh)

	mode, status := "none", "ok"
	if err != nil {
		status = "error"
	} else if est.Mode != "" {
		mode = string(est.Mode)
	}
	metrics.EstimateRequests.WithLabelValues(mode, status).Inc()
	metrics.EstimateDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	return est, err
}

func (e *Estimator) estimateSwap(ctx context.Context, req SwapRequest, refresh bool) (*domain.Estimate, error) {
	const op = "estimate swap"
	if req.TokenIn.ID == req.TokenOut.ID {
		return nil, common.EstimationError(op, ErrSameToken)
	}
	amountIn, err := common.ToNonDivisible(req.TokenIn.Decimals, req.AmountIn)
	if err != nil {
		return nil, common.EstimationError(op, err)
	}
	if amountIn.Sign() == 0 {
		return zeroEstimate(), nil
	}

	snapshot, err := e.provider.Pools(ctx, refresh)
	if err != nil {
		return nil, common.EstimationError(op, err)
	}
	if snapshot == nil {
		return nil, common.EstimationError(op, ErrNoPoolFound)
	}
	r := NewRouter(e.graphFor(snapshot), e.cfg)

	var parallel, stable, smart *domain.Estimate
	var g errgroup.Group
	g.Go(func() error {
		parallel, _ = r.ParallelRoute(req.TokenIn.ID, req.TokenOut.ID, amountIn)
		return nil
	})
	g.Go(func() error {
		stable, _ = r.StableRoute(req.TokenIn.ID, req.TokenOut.ID, amountIn)
		return nil
	})
	g.Go(func() error {
		smart, _ = r.SmartRoute(req.TokenIn.ID, req.TokenOut.ID, amountIn)
		return nil
	})
	_ = g.Wait()

	var best *domain.Estimate
	for _, candidate := range []*domain.Estimate{parallel, stable, smart} {
		if IsBetterEstimate(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil, common.EstimationError(op, ErrNoRoute)
	}
	if best.AmountOut.Sign() <= 0 {
		return nil, common.EstimationError(op, ErrNonPositiveOutput)
	}

	e.logger.Debug().
		Str("tokenIn", req.TokenIn.ID).
		Str("tokenOut", req.TokenOut.ID).
		Str("mode", string(best.Mode)).
		Int("legs", len(best.Legs)).
		Str("amountOut", best.AmountOut.String()).
		Msg("[estimator] route selected")
	return best, nil
}

// EstimateStableSwap quotes one stable pool and also reports the output before
// the pool fee.
func (e *Estimator) EstimateStableSwap(ctx context.Context, req StableSwapRequest, refresh bool) (*domain.StableEstimate, error) {
	start := time.Now()
	est, err := e.estimateStableSwap(ctx, req, refresh)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.EstimateRequests.WithLabelValues(string(domain.PoolModeStable), status).Inc()
	metrics.EstimateDuration.WithLabelValues(string(domain.PoolModeStable)).Observe(time.Since(start).Seconds())
	return est, err
}

func (e *Estimator) estimateStableSwap(ctx context.Context, req StableSwapRequest, refresh bool) (*domain.StableEstimate, error) {
	const op = "estimate stable swap"
	if req.TokenIn.ID == req.TokenOut.ID {
		return nil, common.EstimationError(op, ErrSameToken)
	}
	amountIn, err := common.ToNonDivisible(req.TokenIn.Decimals, req.AmountIn)
	if err != nil {
		return nil, common.EstimationError(op, err)
	}
	if amountIn.Sign() == 0 {
		return &domain.StableEstimate{
			AmountIn:       amountIn,
			AmountOut:      new(big.Int),
			NoFeeAmountOut: new(big.Int),
		}, nil
	}

	pool, err := e.provider.GetStablePool(ctx, req.PoolID, refresh)
	if err != nil {
		return nil, common.EstimationError(op, err)
	}
	res, err := StableSwapOut(pool, req.TokenIn.ID, req.TokenOut.ID, amountIn)
	if err != nil {
		return nil, common.EstimationError(op, err)
	}
	if res.AmountOut.Sign() <= 0 {
		return nil, common.EstimationError(op, ErrNonPositiveOutput)
	}

	return &domain.StableEstimate{
		Leg: domain.RouteLeg{
			PoolID:      pool.ID,
			PoolKind:    pool.Kind,
			FeeBps:      pool.FeeBps,
			TokenIn:     req.TokenIn.ID,
			TokenOut:    req.TokenOut.ID,
			AmountIn:    amountIn,
			EstimateOut: res.AmountOut,
			Mode:        domain.PoolModeStable,
		},
		Pool:           pool,
		AmountIn:       amountIn,
		AmountOut:      res.AmountOut,
		NoFeeAmountOut: res.NoFeeAmountOut,
	}, nil
}
