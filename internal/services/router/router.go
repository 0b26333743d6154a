package router

import (
	"math/big"
	"sort"

	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

// MinSplitPercent is the minimum percent allocation per pool
const MinSplitPercent = 10

// Router searches one graph for the three route shapes the exchange executes.
type Router struct {
	graph        *Graph
	maxSplits    int
	stableTokens map[string]struct{}
	stablePools  map[uint64]struct{}
}

func NewRouter(graph *Graph, cfg Config) *Router {
	maxSplits := cfg.MaxSplits
	if maxSplits < 1 {
		maxSplits = 1
	}
	tokens := make(map[string]struct{}, len(cfg.StableTokenIDs))
	for _, t := range cfg.StableTokenIDs {
		tokens[t] = struct{}{}
	}
	pools := make(map[uint64]struct{}, len(cfg.StablePoolIDs))
	for _, id := range cfg.StablePoolIDs {
		pools[id] = struct{}{}
	}
	return &Router{
		graph:        graph,
		maxSplits:    maxSplits,
		stableTokens: tokens,
		stablePools:  pools,
	}
}

func (r *Router) isStableToken(token string) bool {
	_, ok := r.stableTokens[token]
	return ok
}

// isConfiguredStable reports whether a stable pool may be quoted on the curve.
func (r *Router) isConfiguredStable(pool *domain.Pool) bool {
	_, ok := r.stablePools[pool.ID]
	return ok
}

// splitResult is one allocation of the input across direct pools.
type splitResult struct {
	legs     []domain.RouteLeg
	totalOut *big.Int
	avgFee   float64
}

// ParallelRoute returns the best allocation of amount across the simple pools
// connecting the pair: a single pool, a two-way split or a three-way split.
func (r *Router) ParallelRoute(tokenIn, tokenOut string, amount *big.Int) (*domain.Estimate, error) {
	pools := r.graph.GetDirectSimplePools(tokenIn, tokenOut)
	if len(pools) == 0 {
		return nil, ErrNoPoolFound
	}
	metrics.PoolsEvaluated.Observe(float64(len(pools)))

	var best *splitResult
	for _, pool := range pools {
		split, err := r.calculateSplit([]*domain.Pool{pool}, tokenIn, tokenOut, amount, []uint8{100})
		if err == nil && isBetterSplit(split, best) {
			best = split
		}
	}

	ranked := rankPoolsByLiquidity(pools, tokenOut)
	if len(ranked) > r.maxSplits {
		ranked = ranked[:r.maxSplits]
	}
	if len(ranked) >= 2 {
		if split := r.binarySearchSplit(ranked[:2], tokenIn, tokenOut, amount); split != nil && isBetterSplit(split, best) {
			best = split
		}
	}
	if len(ranked) >= 3 {
		if split := r.optimizeThreeWaySplit(ranked[:3], tokenIn, tokenOut, amount); split != nil && isBetterSplit(split, best) {
			best = split
		}
	}
	if best == nil {
		return nil, ErrNoPoolFound
	}

	return &domain.Estimate{
		Mode:          domain.PoolModeParallel,
		Legs:          best.legs,
		AmountIn:      new(big.Int).Set(amount),
		AmountOut:     best.totalOut,
		AverageFeeBps: best.avgFee,
	}, nil
}

// rankPoolsByLiquidity orders pools by their output-side reserve, deepest first.
func rankPoolsByLiquidity(pools []*domain.Pool, tokenOut string) []*domain.Pool {
	ranked := make([]*domain.Pool, 0, len(pools))
	for _, p := range pools {
		if liq := p.Reserve(tokenOut); liq != nil && liq.Sign() > 0 {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Reserve(tokenOut).Cmp(ranked[j].Reserve(tokenOut)) > 0
	})
	return ranked
}

// binarySearchSplit finds optimal 2-pool split using binary search
func (r *Router) binarySearchSplit(pools []*domain.Pool, tokenIn, tokenOut string, total *big.Int) *splitResult {
	if len(pools) != 2 {
		return nil
	}

	lo, hi := uint8(MinSplitPercent), uint8(100-MinSplitPercent)
	var best *splitResult
	iterations := 0

	for _, p1 := range []uint8{lo, 50, hi} {
		split, err := r.calculateSplit(pools, tokenIn, tokenOut, total, []uint8{p1, 100 - p1})
		if err == nil && isBetterSplit(split, best) {
			best = split
		}
	}

	for ; iterations < 6 && hi-lo > 4; iterations++ {
		mid := (lo + hi) / 2
		midLeft, midRight := mid-2, mid+2
		if midLeft < MinSplitPercent {
			midLeft = MinSplitPercent
		}
		if midRight > 100-MinSplitPercent {
			midRight = 100 - MinSplitPercent
		}

		left, errL := r.calculateSplit(pools, tokenIn, tokenOut, total, []uint8{midLeft, 100 - midLeft})
		right, errR := r.calculateSplit(pools, tokenIn, tokenOut, total, []uint8{midRight, 100 - midRight})
		if errL == nil && isBetterSplit(left, best) {
			best = left
		}
		if errR == nil && isBetterSplit(right, best) {
			best = right
		}

		leftBetter := false
		if errL == nil && errR == nil {
			leftBetter = left.totalOut.Cmp(right.totalOut) > 0
		} else if errL == nil {
			leftBetter = true
		}
		if leftBetter {
			hi = mid
		} else {
			lo = mid
		}
	}
	metrics.SplitIterations.Observe(float64(iterations))

	return best
}

// optimizeThreeWaySplit walks the 3-pool allocation simplex with a shrinking step.
func (r *Router) optimizeThreeWaySplit(pools []*domain.Pool, tokenIn, tokenOut string, total *big.Int) *splitResult {
	if len(pools) != 3 {
		return nil
	}

	p1, p2 := 34, 33
	best, err := r.calculateSplit(pools, tokenIn, tokenOut, total, []uint8{uint8(p1), uint8(p2), uint8(100 - p1 - p2)})
	if err != nil {
		return nil
	}

	step := 8
	iterations := 0
	for step >= 1 && iterations < 12 {
		iterations++
		improved := false
		adjustments := [][2]int{
			{step, -step}, {-step, step},
			{step, 0}, {-step, 0},
			{0, step}, {0, -step},
		}
		for _, adj := range adjustments {
			n1, n2 := p1+adj[0], p2+adj[1]
			n3 := 100 - n1 - n2
			if n1 < MinSplitPercent || n2 < MinSplitPercent || n3 < MinSplitPercent {
				continue
			}
			split, err := r.calculateSplit(pools, tokenIn, tokenOut, total, []uint8{uint8(n1), uint8(n2), uint8(n3)})
			if err == nil && isBetterSplit(split, best) {
				best = split
				p1, p2 = n1, n2
				improved = true
				break
			}
		}
		if !improved {
			step /= 2
		}
	}
	metrics.SplitIterations.Observe(float64(iterations))

	return best
}

// calculateSplit quotes one allocation. The last pool takes the rounding
// remainder so the leg inputs always sum to total.
func (r *Router) calculateSplit(pools []*domain.Pool, tokenIn, tokenOut string, total *big.Int, percents []uint8) (*splitResult, error) {
	if len(pools) == 0 || len(pools) != len(percents) {
		return nil, ErrNoPoolFound
	}
	var sum int
	for _, p := range percents {
		sum += int(p)
	}
	if sum != 100 {
		return nil, ErrNoPoolFound
	}

	legs := make([]domain.RouteLeg, 0, len(pools))
	totalOut := new(big.Int)
	allocated := new(big.Int)
	weightedFee := new(big.Float)

	for i, pool := range pools {
		var amountIn *big.Int
		if i == len(pools)-1 {
			amountIn = new(big.Int).Sub(total, allocated)
		} else {
			amountIn = splitAmount(total, percents[i])
		}
		allocated.Add(allocated, amountIn)
		if amountIn.Sign() <= 0 {
			return nil, ErrInsufficientLiquidity
		}

		out, err := poolAmountOut(pool, tokenIn, tokenOut, amountIn)
		if err != nil {
			return nil, err
		}

		legs = append(legs, domain.RouteLeg{
			PoolID:      pool.ID,
			PoolKind:    pool.Kind,
			FeeBps:      pool.FeeBps,
			TokenIn:     tokenIn,
			TokenOut:    tokenOut,
			AmountIn:    amountIn,
			EstimateOut: out,
			Mode:        domain.PoolModeParallel,
		})
		totalOut.Add(totalOut, out)
		weightedFee.Add(weightedFee, new(big.Float).Mul(new(big.Float).SetInt(amountIn), big.NewFloat(float64(pool.FeeBps))))
	}

	avg, _ := new(big.Float).Quo(weightedFee, new(big.Float).SetInt(total)).Float64()
	return &splitResult{legs: legs, totalOut: totalOut, avgFee: avg}, nil
}

func isBetterSplit(candidate, best *splitResult) bool {
	if candidate == nil {
		return false
	}
	if best == nil {
		return true
	}
	switch candidate.totalOut.Cmp(best.totalOut) {
	case 1:
		return true
	case 0:
		return candidate.avgFee < best.avgFee
	default:
		return false
	}
}

// StableRoute quotes every configured stable pool holding both tokens. Both
// tokens must belong to the stable token set.
func (r *Router) StableRoute(tokenIn, tokenOut string, amount *big.Int) (*domain.Estimate, error) {
	if !r.isStableToken(tokenIn) || !r.isStableToken(tokenOut) {
		return nil, ErrNoRoute
	}

	var best *domain.Estimate
	for _, pool := range r.graph.GetDirectRoutesForPair(tokenIn, tokenOut) {
		if !pool.IsStable() || !r.isConfiguredStable(pool) {
			continue
		}
		res, err := StableSwapOut(pool, tokenIn, tokenOut, amount)
		if err != nil {
			continue
		}
		candidate := &domain.Estimate{
			Mode: domain.PoolModeStable,
			Legs: []domain.RouteLeg{{
				PoolID:      pool.ID,
				PoolKind:    pool.Kind,
				FeeBps:      pool.FeeBps,
				TokenIn:     tokenIn,
				TokenOut:    tokenOut,
				AmountIn:    new(big.Int).Set(amount),
				EstimateOut: res.AmountOut,
				Mode:        domain.PoolModeStable,
			}},
			AmountIn:      new(big.Int).Set(amount),
			AmountOut:     res.AmountOut,
			AverageFeeBps: float64(pool.FeeBps),
		}
		if IsBetterEstimate(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil, ErrNoPoolFound
	}
	return best, nil
}

// bestHop picks the pool with the highest output for one hop.
func (r *Router) bestHop(tokenIn, tokenOut string, amount *big.Int, exclude uint64) (*domain.Pool, *big.Int) {
	var bestPool *domain.Pool
	var bestOut *big.Int
	for _, pool := range r.graph.GetDirectRoutesForPair(tokenIn, tokenOut) {
		if pool.ID == exclude || (pool.IsStable() && !r.isConfiguredStable(pool)) {
			continue
		}
		out, err := poolAmountOut(pool, tokenIn, tokenOut, amount)
		if err != nil || out.Sign() <= 0 {
			continue
		}
		if bestOut == nil || out.Cmp(bestOut) > 0 || (out.Cmp(bestOut) == 0 && pool.FeeBps < bestPool.FeeBps) {
			bestPool, bestOut = pool, out
		}
	}
	return bestPool, bestOut
}

// SmartRoute searches two-hop routes tokenIn -> mid -> tokenOut through every
// token adjacent to both ends.
func (r *Router) SmartRoute(tokenIn, tokenOut string, amount *big.Int) (*domain.Estimate, error) {
	var best *domain.Estimate
	for _, mid := range r.graph.Intermediates(tokenIn, tokenOut) {
		first, midAmount := r.bestHop(tokenIn, mid, amount, 0)
		if first == nil {
			continue
		}
		second, out := r.bestHop(mid, tokenOut, midAmount, first.ID)
		if second == nil {
			continue
		}

		route := []uint64{first.ID, second.ID}
		nodes := []string{tokenIn, mid, tokenOut}
		candidate := &domain.Estimate{
			Mode: domain.PoolModeSmart,
			Legs: []domain.RouteLeg{
				{
					PoolID: first.ID, PoolKind: first.Kind, FeeBps: first.FeeBps,
					TokenIn: tokenIn, TokenOut: mid,
					AmountIn: new(big.Int).Set(amount), EstimateOut: midAmount,
					Mode: domain.PoolModeSmart, Route: route, NodeRoute: nodes,
				},
				{
					PoolID: second.ID, PoolKind: second.Kind, FeeBps: second.FeeBps,
					TokenIn: mid, TokenOut: tokenOut,
					AmountIn: midAmount, EstimateOut: out,
					Mode: domain.PoolModeSmart, Route: route, NodeRoute: nodes,
				},
			},
			AmountIn:      new(big.Int).Set(amount),
			AmountOut:     out,
			AverageFeeBps: float64(first.FeeBps + second.FeeBps),
		}
		if IsBetterEstimate(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil, ErrNoRoute
	}
	return best, nil
}

// IsBetterEstimate prefers the higher output and breaks ties on the lower fee.
func IsBetterEstimate(candidate, best *domain.Estimate) bool {
	if candidate == nil || candidate.AmountOut == nil {
		return false
	}
	if best == nil {
		return true
	}
	switch candidate.AmountOut.Cmp(best.AmountOut) {
	case 1:
		return true
	case 0:
		return candidate.AverageFeeBps < best.AverageFeeBps
	default:
		return false
	}
}
