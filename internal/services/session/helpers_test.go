package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/services/executor"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

const testInterval = 20 * time.Second

var (
	usdt = domain.Token{ID: "usdt.tether-token.near", Symbol: "USDT", Decimals: 6}
	usdc = domain.Token{ID: "usdc.near", Symbol: "USDC", Decimals: 6}
	dai  = domain.Token{ID: "dai.near", Symbol: "DAI", Decimals: 18}
)

// manualClock fires timers only when the test advances it.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	live := !t.stopped && !t.fired
	t.stopped = true
	return live
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Pending counts timers that are armed and not yet fired.
func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type estimateCall struct {
	req     router.SwapRequest
	refresh bool
	release chan struct{}
}

// scriptedEstimator quotes twice the input amount through one parallel leg.
// With block set, every call parks until the test releases it.
type scriptedEstimator struct {
	mu    sync.Mutex
	calls []*estimateCall
	err   error
	block bool

	started chan *estimateCall
}

func newScriptedEstimator(block bool) *scriptedEstimator {
	return &scriptedEstimator{block: block, started: make(chan *estimateCall, 16)}
}

func (e *scriptedEstimator) EstimateSwap(ctx context.Context, req router.SwapRequest, refresh bool) (*domain.Estimate, error) {
	call := &estimateCall{req: req, refresh: refresh, release: make(chan struct{})}
	e.mu.Lock()
	e.calls = append(e.calls, call)
	block, err := e.block, e.err
	e.mu.Unlock()

	if block {
		e.started <- call
		select {
		case <-call.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, common.EstimationError("estimate swap", err)
	}

	in, convErr := common.ToNonDivisible(req.TokenIn.Decimals, req.AmountIn)
	if convErr != nil {
		return nil, common.EstimationError("estimate swap", convErr)
	}
	if in.Sign() == 0 {
		return &domain.Estimate{AmountIn: in, AmountOut: new(big.Int)}, nil
	}
	out := new(big.Int).Mul(in, big.NewInt(2))
	return &domain.Estimate{
		Mode: domain.PoolModeParallel,
		Legs: []domain.RouteLeg{{
			PoolID: 1, TokenIn: req.TokenIn.ID, TokenOut: req.TokenOut.ID,
			AmountIn: in, EstimateOut: out, FeeBps: 30, Mode: domain.PoolModeParallel,
		}},
		AmountIn:      in,
		AmountOut:     out,
		AverageFeeBps: 30,
	}, nil
}

func (e *scriptedEstimator) EstimateStableSwap(context.Context, router.StableSwapRequest, bool) (*domain.StableEstimate, error) {
	return nil, errors.New("not scripted")
}

func (e *scriptedEstimator) setErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *scriptedEstimator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *scriptedEstimator) call(i int) *estimateCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[i]
}

// next waits for the next blocked call.
func (e *scriptedEstimator) next(t *testing.T) *estimateCall {
	t.Helper()
	select {
	case c := <-e.started:
		return c
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no estimation started")
		return nil
	}
}

type recordingSubmitter struct {
	mu     sync.Mutex
	swaps  []executor.SwapParams
	stable []executor.StableSwapParams
	err    error
	count  atomic.Int32
}

func (s *recordingSubmitter) Swap(_ context.Context, p executor.SwapParams) (*domain.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, p)
	return s.result()
}

func (s *recordingSubmitter) StableSwap(_ context.Context, p executor.StableSwapParams) (*domain.PendingTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stable = append(s.stable, p)
	return s.result()
}

func (s *recordingSubmitter) result() (*domain.PendingTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := s.count.Add(1)
	return &domain.PendingTransaction{Hash: fmt.Sprintf("hash-%d", n), Path: "/swap"}, nil
}

// poolProvider serves a fixed snapshot to a real estimator.
type poolProvider struct {
	pools    []*domain.Pool
	calls    atomic.Int32
	refreshs atomic.Int32
}

func (p *poolProvider) Pools(_ context.Context, refresh bool) (*domain.PoolSnapshot, error) {
	p.calls.Add(1)
	if refresh {
		p.refreshs.Add(1)
	}
	return &domain.PoolSnapshot{Version: 1, Pools: p.pools}, nil
}

func (p *poolProvider) GetStablePool(_ context.Context, id uint64, refresh bool) (*domain.Pool, error) {
	p.calls.Add(1)
	if refresh {
		p.refreshs.Add(1)
	}
	for _, pool := range p.pools {
		if pool.ID == id {
			return pool, nil
		}
	}
	return nil, router.ErrNoPoolFound
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func stableTriPool(id uint64) *domain.Pool {
	c := new(big.Int).Mul(big.NewInt(1_000_000), pow10(18))
	e6 := new(big.Int).Mul(big.NewInt(1_000_000), pow10(6))
	return &domain.Pool{
		ID:       id,
		Kind:     domain.PoolKindStable,
		TokenIDs: []string{usdt.ID, usdc.ID, dai.ID},
		Reserves: []*big.Int{e6, new(big.Int).Set(e6), new(big.Int).Set(c)},
		FeeBps:   5,
		Stable: &domain.StableData{
			Decimals: []uint8{6, 6, 18},
			CAmounts: []*big.Int{c, new(big.Int).Set(c), new(big.Int).Set(c)},
			Amp:      240,
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}

func params(amount string) Params {
	return Params{TokenIn: usdt, TokenOut: usdc, AmountIn: amount, Slippage: 0.5}
}

func newRouterEstimator(provider *poolProvider) *router.Estimator {
	return router.NewEstimator(provider, router.Config{MaxSplits: 3})
}

func newTestSession(t *testing.T, est Estimator, sub Submitter) (*Session, *manualClock) {
	t.Helper()
	clock := &manualClock{}
	s := NewQuoteSession("test", est, sub, Config{RefreshInterval: testInterval, CallbackPath: "/swap", Clock: clock})
	t.Cleanup(s.Close)
	return s, clock
}
