// Package executor turns a quoted route into exchange transactions and hands
// them to the wallet bridge.
package executor

import (
	"context"
	"errors"
	"math/big"
	"time"

	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-engine/internal/adapters/near"
	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
	"github.com/hxuan190/swap-engine/internal/services/builder"
)

const EXECUTOR_SERVICE = "executor-service"

var (
	ErrNoHashes   = errors.New("bridge returned no transaction hash")
	ErrZeroAmount = errors.New("swap amount is zero")
)

// Chain is the ledger and wallet side of the submitter.
type Chain interface {
	AccountID() string
	ExchangeContractID() string
	IsStorageRegistered(ctx context.Context, tokenID, accountID string) (bool, error)
	SendTransactions(ctx context.Context, txs []domain.Transaction, callbackURL string) ([]string, error)
}

// PendingStore records submitted transactions until their outcome is known.
type PendingStore interface {
	SavePending(tx domain.PendingTransaction) error
}

type SwapParams struct {
	TokenIn  domain.Token
	TokenOut domain.Token
	// AmountIn is readable, in tokenIn units.
	AmountIn          string
	Legs              []domain.RouteLeg
	SlippageTolerance float64
	// UseNearBalance pays from the wallet instead of the exchange deposit.
	UseNearBalance bool
	// CallbackPath is where the wallet returns once the batch is signed.
	CallbackPath string
}

type StableSwapParams struct {
	TokenIn           domain.Token
	TokenOut          domain.Token
	AmountIn          string
	PoolID            uint64
	EstimateOut       *big.Int
	SlippageTolerance float64
	UseNearBalance    bool
	CallbackPath      string
}

type Submitter struct {
	container.BaseDIInstance
	logger *common.ServiceLogger

	chain  Chain
	store  PendingStore
	wrapID string
	now    func() time.Time
}

func NewSubmitter(chain Chain, store PendingStore, wrapID string) *Submitter {
	s := &Submitter{}
	s.init(chain, store, wrapID)
	return s
}

func (s *Submitter) init(chain Chain, store PendingStore, wrapID string) {
	s.chain = chain
	s.store = store
	s.wrapID = wrapID
	s.now = time.Now
	s.logger = common.NewServiceLogger(s)
}

func (s *Submitter) ID() string {
	return EXECUTOR_SERVICE
}

func (s *Submitter) Configure(c container.IContainer) error {
	swapCfg := c.GetConfig(config.SWAP_CONFIG_KEY).(*config.SwapConfig)
	client := c.Instance(near.NEAR_CLIENT_SERVICE).(*near.Client)
	storage := c.Instance(persistence.STORAGE_SERVICE).(*persistence.Storage)

	var store PendingStore
	if storage.Enabled() {
		store = storage
	}
	s.init(client, store, swapCfg.WrapNearContractID)
	return nil
}

func (s *Submitter) Start() error {
	return nil
}

func (s *Submitter) Stop() error {
	return nil
}

// Swap submits a routed swap. Parallel legs become independent actions, a
// smart route becomes one chained action list.
func (s *Submitter) Swap(ctx context.Context, p SwapParams) (*domain.PendingTransaction, error) {
	mode := domain.PoolModeParallel
	if !domain.NoLegInMode(p.Legs, domain.PoolModeSmart) {
		mode = domain.PoolModeSmart
	} else if domain.AllLegsInMode(p.Legs, domain.PoolModeStable) {
		mode = domain.PoolModeStable
	}

	var (
		actions []builder.SwapAction
		err     error
	)
	if mode == domain.PoolModeSmart {
		actions, err = builder.BuildChainedActions(p.Legs, p.SlippageTolerance)
	} else {
		actions, err = builder.BuildParallelActions(p.Legs, p.SlippageTolerance)
	}
	if err != nil {
		return nil, s.record(mode, time.Now(), common.SubmissionError("swap", err))
	}
	return s.submit(ctx, mode, order{
		tokenIn:        p.TokenIn,
		tokenOut:       p.TokenOut,
		amountIn:       p.AmountIn,
		actions:        actions,
		useNearBalance: p.UseNearBalance,
		callbackPath:   p.CallbackPath,
	})
}

// StableSwap submits a single action through one stable pool.
func (s *Submitter) StableSwap(ctx context.Context, p StableSwapParams) (*domain.PendingTransaction, error) {
	const mode = domain.PoolModeStable
	amountIn, err := common.ToNonDivisible(p.TokenIn.Decimals, p.AmountIn)
	if err != nil {
		return nil, s.record(mode, time.Now(), common.SubmissionError("stable swap", err))
	}
	leg := domain.RouteLeg{
		PoolID:      p.PoolID,
		PoolKind:    domain.PoolKindStable,
		TokenIn:     p.TokenIn.ID,
		TokenOut:    p.TokenOut.ID,
		AmountIn:    amountIn,
		EstimateOut: p.EstimateOut,
		Mode:        mode,
	}
	actions, err := builder.BuildParallelActions([]domain.RouteLeg{leg}, p.SlippageTolerance)
	if err != nil {
		return nil, s.record(mode, time.Now(), common.SubmissionError("stable swap", err))
	}
	return s.submit(ctx, mode, order{
		tokenIn:        p.TokenIn,
		tokenOut:       p.TokenOut,
		amountIn:       p.AmountIn,
		actions:        actions,
		useNearBalance: p.UseNearBalance,
		callbackPath:   p.CallbackPath,
	})
}

type order struct {
	tokenIn        domain.Token
	tokenOut       domain.Token
	amountIn       string
	actions        []builder.SwapAction
	useNearBalance bool
	callbackPath   string
}

func (s *Submitter) submit(ctx context.Context, mode domain.PoolMode, o order) (*domain.PendingTransaction, error) {
	const op = "submit swap"
	start := time.Now()

	txs, err := s.buildTransactions(ctx, o)
	if err != nil {
		return nil, s.record(mode, start, common.SubmissionError(op, err))
	}

	// No retry here: a resent batch could execute twice.
	hashes, err := s.chain.SendTransactions(ctx, txs, o.callbackPath)
	if err != nil {
		return nil, s.record(mode, start, common.SubmissionError(op, err))
	}
	if len(hashes) == 0 {
		return nil, s.record(mode, start, common.SubmissionError(op, ErrNoHashes))
	}

	pending := &domain.PendingTransaction{
		Hash:        hashes[len(hashes)-1],
		Path:        o.callbackPath,
		SubmittedAt: s.now(),
	}
	if s.store != nil {
		if err := s.store.SavePending(*pending); err != nil {
			s.logger.Warn().Err(err).Str("hash", pending.Hash).Msg("[executor] failed to persist pending transaction")
		}
	}
	s.record(mode, start, nil)

	s.logger.Info().
		Str("mode", string(mode)).
		Str("tokenIn", o.tokenIn.ID).
		Str("tokenOut", o.tokenOut.ID).
		Str("amountIn", o.amountIn).
		Int("transactions", len(txs)).
		Str("hash", pending.Hash).
		Msg("[executor] swap submitted")
	return pending, nil
}

func (s *Submitter) buildTransactions(ctx context.Context, o order) ([]domain.Transaction, error) {
	amountIn, err := common.ToNonDivisible(o.tokenIn.Decimals, o.amountIn)
	if err != nil {
		return nil, err
	}
	if amountIn.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	account := s.chain.AccountID()
	exchange := s.chain.ExchangeContractID()

	// Swaps from the exchange deposit leave the output in the deposit, so
	// only wallet-balance swaps touch the output token contract.
	if !o.useNearBalance {
		return []domain.Transaction{builder.ExchangeSwap(exchange, o.actions)}, nil
	}

	var txs []domain.Transaction
	registered, err := s.chain.IsStorageRegistered(ctx, o.tokenOut.ID, account)
	if err != nil {
		return nil, err
	}
	if !registered {
		txs = append(txs, builder.StorageDeposit(o.tokenOut.ID, account))
	}

	if o.tokenIn.ID == s.wrapID {
		txs = append(txs, builder.NearDeposit(s.wrapID, amountIn))
	}
	tx, err := builder.FtTransferCall(o.tokenIn.ID, exchange, amountIn, o.actions)
	if err != nil {
		return nil, err
	}
	txs = append(txs, tx)

	if o.tokenOut.ID == s.wrapID {
		txs = append(txs, builder.NearWithdraw(s.wrapID, builder.TotalMinOut(o.actions, o.tokenOut.ID)))
	}
	return txs, nil
}

func (s *Submitter) record(mode domain.PoolMode, start time.Time, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
		s.logger.Error().Err(err).Str("mode", string(mode)).Msg("[executor] swap submission failed")
	}
	metrics.SwapSubmissions.WithLabelValues(string(mode), status).Inc()
	metrics.SwapSubmitDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	return err
}
