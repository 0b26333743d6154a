package executor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/services/builder"
)

const (
	wrapNear = "wrap.near"
	exchange = "v2.ref-finance.near"
	account  = "alice.near"
)

var (
	usdt  = domain.Token{ID: "usdt.tether-token.near", Symbol: "USDT", Decimals: 6}
	usdc  = domain.Token{ID: "usdc.near", Symbol: "USDC", Decimals: 6}
	wnear = domain.Token{ID: wrapNear, Symbol: "wNEAR", Decimals: 24}
)

type fakeChain struct {
	mu         sync.Mutex
	registered map[string]bool
	sendErr    error
	hashes     []string
	sent       [][]domain.Transaction
	callbacks  []string
}

func (f *fakeChain) AccountID() string          { return account }
func (f *fakeChain) ExchangeContractID() string { return exchange }

func (f *fakeChain) IsStorageRegistered(_ context.Context, tokenID, _ string) (bool, error) {
	return f.registered[tokenID], nil
}

func (f *fakeChain) SendTransactions(_ context.Context, txs []domain.Transaction, callbackURL string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, txs)
	f.callbacks = append(f.callbacks, callbackURL)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.hashes, nil
}

type memPending struct {
	saved []domain.PendingTransaction
}

func (m *memPending) SavePending(tx domain.PendingTransaction) error {
	m.saved = append(m.saved, tx)
	return nil
}

func methods(txs []domain.Transaction) []string {
	var out []string
	for _, tx := range txs {
		for _, call := range tx.FunctionCalls {
			out = append(out, tx.ReceiverID+":"+call.MethodName)
		}
	}
	return out
}

func parallelLegs() []domain.RouteLeg {
	return []domain.RouteLeg{
		{PoolID: 1, TokenIn: usdt.ID, TokenOut: usdc.ID, AmountIn: big.NewInt(600_000), EstimateOut: big.NewInt(599_000), Mode: domain.PoolModeParallel},
		{PoolID: 2, TokenIn: usdt.ID, TokenOut: usdc.ID, AmountIn: big.NewInt(400_000), EstimateOut: big.NewInt(399_000), Mode: domain.PoolModeParallel},
	}
}

func TestSwapWithWalletBalance(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{usdc.ID: true}, hashes: []string{"h1"}}
	store := &memPending{}
	s := NewSubmitter(chain, store, wrapNear)
	s.now = func() time.Time { return time.Unix(100, 0) }

	pending, err := s.Swap(context.Background(), SwapParams{
		TokenIn:           usdt,
		TokenOut:          usdc,
		AmountIn:          "1",
		Legs:              parallelLegs(),
		SlippageTolerance: 0.5,
		UseNearBalance:    true,
		CallbackPath:      "/swap",
	})
	require.NoError(t, err)
	assert.Equal(t, "h1", pending.Hash)
	assert.Equal(t, "/swap", pending.Path)
	assert.Equal(t, time.Unix(100, 0), pending.SubmittedAt)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "h1", store.saved[0].Hash)

	require.Len(t, chain.sent, 1)
	assert.Equal(t, []string{usdt.ID + ":ft_transfer_call"}, methods(chain.sent[0]))
	call := chain.sent[0][0].FunctionCalls[0]
	assert.Equal(t, "1000000", call.Args["amount"])
	assert.Equal(t, exchange, call.Args["receiver_id"])
	assert.Equal(t, "/swap", chain.callbacks[0])
}

func TestSwapRegistersOutputStorage(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{}, hashes: []string{"h1", "h2"}}
	s := NewSubmitter(chain, nil, wrapNear)

	pending, err := s.Swap(context.Background(), SwapParams{
		TokenIn:        usdt,
		TokenOut:       usdc,
		AmountIn:       "1",
		Legs:           parallelLegs(),
		UseNearBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "h2", pending.Hash)
	assert.Equal(t, []string{usdc.ID + ":storage_deposit", usdt.ID + ":ft_transfer_call"}, methods(chain.sent[0]))
}

func TestSwapFromExchangeBalance(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{}, hashes: []string{"h1"}}
	s := NewSubmitter(chain, nil, wrapNear)

	pending, err := s.Swap(context.Background(), SwapParams{
		TokenIn:  usdt,
		TokenOut: usdc,
		AmountIn: "1",
		Legs:     parallelLegs(),
	})
	require.NoError(t, err)
	assert.Equal(t, "h1", pending.Hash)
	assert.Equal(t, []string{exchange + ":swap"}, methods(chain.sent[0]))

	swap := chain.sent[0][0].FunctionCalls[0]
	actions := swap.Args["actions"].([]builder.SwapAction)
	require.Len(t, actions, 2)
	assert.Equal(t, "599000", actions[0].MinAmountOut)
}

func TestSwapFromExchangeBalanceKeepsWrappedOutput(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{}, hashes: []string{"h"}}
	s := NewSubmitter(chain, nil, wrapNear)

	_, err := s.Swap(context.Background(), SwapParams{
		TokenIn:  usdc,
		TokenOut: wnear,
		AmountIn: "3",
		Legs: []domain.RouteLeg{{
			PoolID: 3, TokenIn: usdc.ID, TokenOut: wrapNear,
			AmountIn: big.NewInt(3_000_000), EstimateOut: big.NewInt(1000), Mode: domain.PoolModeParallel,
		}},
		SlippageTolerance: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{exchange + ":swap"}, methods(chain.sent[0]))
}

func TestSwapWrapsAndUnwrapsNear(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{wrapNear: true, usdc.ID: true}, hashes: []string{"h"}}
	s := NewSubmitter(chain, nil, wrapNear)

	in := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	_, err := s.Swap(context.Background(), SwapParams{
		TokenIn:  wnear,
		TokenOut: usdc,
		AmountIn: "1",
		Legs: []domain.RouteLeg{{
			PoolID: 3, TokenIn: wrapNear, TokenOut: usdc.ID,
			AmountIn: in, EstimateOut: big.NewInt(3_000_000), Mode: domain.PoolModeParallel,
		}},
		UseNearBalance: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{wrapNear + ":near_deposit", wrapNear + ":ft_transfer_call"}, methods(chain.sent[0]))
	assert.Equal(t, in.String(), chain.sent[0][0].FunctionCalls[0].Deposit)

	_, err = s.Swap(context.Background(), SwapParams{
		TokenIn:  usdc,
		TokenOut: wnear,
		AmountIn: "3",
		Legs: []domain.RouteLeg{{
			PoolID: 3, TokenIn: usdc.ID, TokenOut: wrapNear,
			AmountIn: big.NewInt(3_000_000), EstimateOut: big.NewInt(1000), Mode: domain.PoolModeParallel,
		}},
		SlippageTolerance: 1,
		UseNearBalance:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{usdc.ID + ":ft_transfer_call", wrapNear + ":near_withdraw"}, methods(chain.sent[1]))
	assert.Equal(t, "990", chain.sent[1][1].FunctionCalls[0].Args["amount"])
}

func TestSwapSmartRouteChainsActions(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{usdc.ID: true}, hashes: []string{"h"}}
	s := NewSubmitter(chain, nil, wrapNear)

	route := []uint64{1, 2}
	_, err := s.Swap(context.Background(), SwapParams{
		TokenIn:  usdt,
		TokenOut: usdc,
		AmountIn: "1",
		Legs: []domain.RouteLeg{
			{PoolID: 1, TokenIn: usdt.ID, TokenOut: "mid", AmountIn: big.NewInt(1_000_000), EstimateOut: big.NewInt(500), Mode: domain.PoolModeSmart, Route: route},
			{PoolID: 2, TokenIn: "mid", TokenOut: usdc.ID, AmountIn: big.NewInt(500), EstimateOut: big.NewInt(990_000), Mode: domain.PoolModeSmart, Route: route},
		},
		SlippageTolerance: 1,
	})
	require.NoError(t, err)

	actions := chain.sent[0][0].FunctionCalls[0].Args["actions"].([]builder.SwapAction)
	require.Len(t, actions, 2)
	assert.Equal(t, "1000000", actions[0].AmountIn)
	assert.Equal(t, "0", actions[0].MinAmountOut)
	assert.Empty(t, actions[1].AmountIn)
	assert.Equal(t, "980100", actions[1].MinAmountOut)
}

func TestStableSwap(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{usdc.ID: true}, hashes: []string{"h"}}
	s := NewSubmitter(chain, nil, wrapNear)

	_, err := s.StableSwap(context.Background(), StableSwapParams{
		TokenIn:           usdt,
		TokenOut:          usdc,
		AmountIn:          "1000",
		PoolID:            1910,
		EstimateOut:       big.NewInt(999_499_537),
		SlippageTolerance: 0.1,
		UseNearBalance:    true,
	})
	require.NoError(t, err)

	call := chain.sent[0][0].FunctionCalls[0]
	assert.Equal(t, "ft_transfer_call", call.MethodName)
	assert.Equal(t, "1000000000", call.Args["amount"])
	assert.Contains(t, call.Args["msg"], `"pool_id":1910`)
	// 999499537 * 0.999, floored
	assert.Contains(t, call.Args["msg"], `"min_amount_out":"998500037"`)
}

func TestSwapFailuresAreSubmissionErrors(t *testing.T) {
	chain := &fakeChain{registered: map[string]bool{usdc.ID: true}, sendErr: errors.New("user rejected")}
	store := &memPending{}
	s := NewSubmitter(chain, store, wrapNear)

	_, err := s.Swap(context.Background(), SwapParams{TokenIn: usdt, TokenOut: usdc, AmountIn: "1", Legs: parallelLegs()})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindSubmission))
	assert.Len(t, chain.sent, 1, "a failed batch is never resent")
	assert.Empty(t, store.saved)

	_, err = s.Swap(context.Background(), SwapParams{TokenIn: usdt, TokenOut: usdc, AmountIn: "1"})
	assert.True(t, common.IsKind(err, common.KindSubmission))
	assert.ErrorIs(t, err, builder.ErrNoLegs)

	_, err = s.Swap(context.Background(), SwapParams{TokenIn: usdt, TokenOut: usdc, AmountIn: "0", Legs: parallelLegs()})
	assert.ErrorIs(t, err, ErrZeroAmount)
}
