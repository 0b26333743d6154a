package session

import (
	"context"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/services/executor"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

type Estimator interface {
	EstimateSwap(ctx context.Context, req router.SwapRequest, refresh bool) (*domain.Estimate, error)
	EstimateStableSwap(ctx context.Context, req router.StableSwapRequest, refresh bool) (*domain.StableEstimate, error)
}

type Submitter interface {
	Swap(ctx context.Context, p executor.SwapParams) (*domain.PendingTransaction, error)
	StableSwap(ctx context.Context, p executor.StableSwapParams) (*domain.PendingTransaction, error)
}

func swapRequest(p Params) router.SwapRequest {
	return router.SwapRequest{TokenIn: p.TokenIn, TokenOut: p.TokenOut, AmountIn: p.AmountIn}
}

type standardBackend struct {
	estimator Estimator
	submitter Submitter
}

func (b *standardBackend) estimate(ctx context.Context, p Params, refresh bool) (*result, error) {
	est, err := b.estimator.EstimateSwap(ctx, swapRequest(p), refresh)
	if err != nil {
		return nil, err
	}
	return &result{
		amountOut: est.AmountOut,
		avgFeeBps: est.AverageFeeBps,
		mode:      est.Mode,
		legs:      est.Legs,
	}, nil
}

func (b *standardBackend) submit(ctx context.Context, p Params, q Quote, useNearBalance bool, callbackPath string) (*domain.PendingTransaction, error) {
	return b.submitter.Swap(ctx, executor.SwapParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		AmountIn:          p.AmountIn,
		Legs:              q.Legs,
		SlippageTolerance: p.Slippage,
		UseNearBalance:    useNearBalance,
		CallbackPath:      callbackPath,
	})
}

func (b *standardBackend) skipRefresh(Params) bool {
	return false
}

type stableBackend struct {
	poolID    uint64
	estimator Estimator
	submitter Submitter
}

func (b *stableBackend) estimate(ctx context.Context, p Params, refresh bool) (*result, error) {
	est, err := b.estimator.EstimateStableSwap(ctx, router.StableSwapRequest{
		SwapRequest: swapRequest(p),
		PoolID:      b.poolID,
	}, refresh)
	if err != nil {
		return nil, err
	}
	res := &result{
		amountOut: est.AmountOut,
		noFee:     est.NoFeeAmountOut,
		mode:      domain.PoolModeStable,
	}
	if est.AmountOut != nil && est.AmountOut.Sign() > 0 {
		res.legs = []domain.RouteLeg{est.Leg}
		res.avgFeeBps = float64(est.Leg.FeeBps)
	}
	return res, nil
}

func (b *stableBackend) submit(ctx context.Context, p Params, q Quote, useNearBalance bool, callbackPath string) (*domain.PendingTransaction, error) {
	return b.submitter.StableSwap(ctx, executor.StableSwapParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		AmountIn:          p.AmountIn,
		PoolID:            b.poolID,
		EstimateOut:       q.amountOut,
		SlippageTolerance: p.Slippage,
		UseNearBalance:    useNearBalance,
		CallbackPath:      callbackPath,
	})
}

// A zero amount leaves a stable quote with nothing to refresh.
func (b *stableBackend) skipRefresh(p Params) bool {
	return common.IsZeroAmount(p.AmountIn)
}
