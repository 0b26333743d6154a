// Package session keeps a swap quote fresh while a user edits the swap form
// and submits it once the user confirms.
package session

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

type passKind int

const (
	// passUser follows an edit of tokens or amount and hides the old quote.
	passUser passKind = iota
	// passSilent refreshes pool state in the background.
	passSilent
	// passFollowUp re-quotes against the pools a silent pass refreshed.
	passFollowUp
)

func (k passKind) String() string {
	switch k {
	case passUser:
		return "user"
	case passSilent:
		return "silent"
	case passFollowUp:
		return "follow_up"
	default:
		return "unknown"
	}
}

type result struct {
	amountOut *big.Int
	noFee     *big.Int
	avgFeeBps float64
	mode      domain.PoolMode
	legs      []domain.RouteLeg
}

// backend is what differs between the standard and the stable session.
type backend interface {
	estimate(ctx context.Context, p Params, refresh bool) (*result, error)
	submit(ctx context.Context, p Params, q Quote, useNearBalance bool, callbackPath string) (*domain.PendingTransaction, error)
	// skipRefresh reports whether a timer fire has nothing to refresh.
	skipRefresh(p Params) bool
}

type Config struct {
	RefreshInterval time.Duration
	CallbackPath    string
	Clock           Clock
}

func (c Config) withDefaults() Config {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = config.DefaultRefreshInterval
	}
	if c.Clock == nil {
		c.Clock = RealClock
	}
	return c
}

// Session is one live quote. All methods are safe for concurrent use;
// estimations run on their own goroutines and the last one started wins.
type Session struct {
	id      string
	kind    Kind
	poolID  uint64
	backend backend
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	task   *refreshTask

	mu             sync.Mutex
	params         Params
	started        bool
	quote          Quote
	canSwap        bool
	lastErr        error
	phase          Phase
	loadingTrigger bool
	triggerGen     uint64
	loadingPause   bool
	generation     uint64
	lastTx         *domain.PendingTransaction
	updatedAt      time.Time
	refreshedAt    time.Time
	closed         bool

	touched  atomic.Int64
	inflight sync.WaitGroup
}

func newSession(id string, kind Kind, poolID uint64, b backend, cfg Config) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		kind:    kind,
		poolID:  poolID,
		backend: b,
		cfg:     cfg,
		logger:  log.With().Str("service", SESSION_SERVICE).Str("session", id).Logger(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		phase:   PhaseIdle,
	}
	s.task = newRefreshTask(cfg.Clock, cfg.RefreshInterval, s.onRefreshTimer)
	s.touch()
	metrics.ActiveSessions.WithLabelValues(string(kind)).Inc()
	return s
}

// NewQuoteSession creates a session quoting the best route across all pools.
func NewQuoteSession(id string, estimator Estimator, submitter Submitter, cfg Config) *Session {
	return newSession(id, KindStandard, 0, &standardBackend{estimator: estimator, submitter: submitter}, cfg)
}

// NewStableSession creates a session bound to a single stable pool.
func NewStableSession(id string, poolID uint64, estimator Estimator, submitter Submitter, cfg Config) *Session {
	return newSession(id, KindStable, poolID, &stableBackend{poolID: poolID, estimator: estimator, submitter: submitter}, cfg)
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Kind() Kind {
	return s.kind
}

func (s *Session) touch() {
	s.touched.Store(s.now().UnixNano())
}

// LastTouched is the last time a caller used the session.
func (s *Session) LastTouched() time.Time {
	return time.Unix(0, s.touched.Load())
}

// SetParams applies a form edit. A token or amount change starts a visible
// pass; a slippage-only change just recomputes the minimum output.
func (s *Session) SetParams(p Params) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	prev := s.params
	s.params = p
	if !p.ready() {
		s.resetLocked()
		return nil
	}

	if !s.started || !prev.sameRoute(p) {
		s.started = true
		s.startPassLocked(passUser)
		s.rescheduleLocked()
		return nil
	}

	if prev.Slippage != p.Slippage && s.quote.amountOut != nil {
		s.quote.MinAmountOut = common.ToReadable(p.TokenOut.Decimals, common.PercentLess(p.Slippage, s.quote.amountOut))
		s.updatedAt = s.now()
	}
	return nil
}

// resetLocked drops the quote once the params can no longer be estimated.
// Passes still in flight become stale and the timer stays off until the next
// valid edit.
func (s *Session) resetLocked() {
	s.generation++
	s.quote = Quote{}
	s.canSwap = false
	s.lastErr = nil
	s.phase = PhaseIdle
	s.started = false
	s.updatedAt = s.now()
	s.task.stop()
}

// SetPaused stops or restarts the periodic refresh.
func (s *Session) SetPaused(paused bool) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.loadingPause = paused
	if paused {
		s.task.pause()
		return nil
	}
	s.task.resume()
	if s.started {
		s.rescheduleLocked()
	}
	return nil
}

// TriggerRefresh starts a silent pass now, as if the timer had fired.
func (s *Session) TriggerRefresh() error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.params.ready() {
		return nil
	}
	s.started = true
	s.startPassLocked(passSilent)
	return nil
}

func (s *Session) onRefreshTimer() {
	defer s.task.done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.loadingPause || s.loadingTrigger {
		return
	}
	if !s.params.ready() || s.backend.skipRefresh(s.params) {
		s.rescheduleLocked()
		return
	}
	s.startPassLocked(passSilent)
}

func (s *Session) startPassLocked(kind passKind) {
	s.generation++
	gen := s.generation

	switch kind {
	case passSilent:
		s.loadingTrigger = true
		s.triggerGen = gen
		s.task.stop()
	case passUser:
		s.canSwap = false
		s.phase = PhaseEstimating
	}

	p := s.params
	s.inflight.Add(1)
	go s.run(gen, kind, p)
}

func (s *Session) run(gen uint64, kind passKind, p Params) {
	defer s.inflight.Done()

	res, err := s.backend.estimate(s.ctx, p, kind == passSilent)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if kind == passSilent && s.triggerGen == gen {
		s.loadingTrigger = false
	}

	if gen != s.generation {
		metrics.StaleEstimates.Inc()
		metrics.SessionPasses.WithLabelValues(kind.String(), "stale").Inc()
		s.logger.Debug().Uint64("generation", gen).Uint64("latest", s.generation).Msg("[session] dropped stale estimate")
		s.rescheduleLocked()
		return
	}

	s.updatedAt = s.now()
	switch {
	case err != nil:
		metrics.SessionPasses.WithLabelValues(kind.String(), "error").Inc()
		s.applyErrorLocked(err)
	case kind == passSilent:
		metrics.SessionPasses.WithLabelValues(kind.String(), "ok").Inc()
		s.quote.AverageFeeBps = res.avgFeeBps
		s.refreshedAt = s.updatedAt
		s.startPassLocked(passFollowUp)
	default:
		metrics.SessionPasses.WithLabelValues(kind.String(), "ok").Inc()
		s.applyResultLocked(res)
	}
	s.rescheduleLocked()
}

func (s *Session) applyResultLocked(res *result) {
	s.lastErr = nil
	s.phase = PhaseQuoted
	if res.amountOut == nil || res.amountOut.Sign() == 0 {
		s.quote = Quote{TokenOutAmount: "0", MinAmountOut: "0", amountOut: new(big.Int)}
		s.canSwap = false
		return
	}

	decimals := s.params.TokenOut.Decimals
	s.quote = Quote{
		TokenOutAmount: common.ToReadable(decimals, res.amountOut),
		MinAmountOut:   common.ToReadable(decimals, common.PercentLess(s.params.Slippage, res.amountOut)),
		AverageFeeBps:  res.avgFeeBps,
		Mode:           res.mode,
		Legs:           res.legs,
		amountOut:      res.amountOut,
	}
	if res.noFee != nil {
		s.quote.NoFeeAmount = common.ToReadable(decimals, res.noFee)
	}
	s.canSwap = true
}

func (s *Session) applyErrorLocked(err error) {
	s.quote = Quote{}
	s.canSwap = false
	s.phase = PhaseErrored
	s.lastErr = common.EstimationError("quote session", err)
	s.logger.Debug().Err(err).Msg("[session] estimation failed")
}

// rescheduleLocked keeps exactly one timer alive while the session has
// estimable params, no silent pass in flight and no pause.
func (s *Session) rescheduleLocked() {
	if s.closed || s.loadingPause {
		return
	}
	if !s.started || s.loadingTrigger {
		s.task.stop()
		return
	}
	s.task.reset()
}

// MakeSwap submits the current quote. Failures are recorded on the session
// and returned.
func (s *Session) MakeSwap(ctx context.Context, useNearBalance bool) (*domain.PendingTransaction, error) {
	const op = "make swap"
	s.touch()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.canSwap {
		err := common.SubmissionError(op, ErrCannotSwap)
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}
	p := s.params
	q := s.quote
	q.Legs = append([]domain.RouteLeg(nil), s.quote.Legs...)
	s.mu.Unlock()

	tx, err := s.backend.submit(ctx, p, q, useNearBalance, s.cfg.CallbackPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		err = common.SubmissionError(op, err)
		s.lastErr = err
		s.logger.Warn().Err(err).Msg("[session] swap failed")
		return nil, err
	}
	s.lastTx = tx
	s.updatedAt = s.now()
	return tx, nil
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quote
	q.Legs = append([]domain.RouteLeg(nil), s.quote.Legs...)
	var lastTx *domain.PendingTransaction
	if s.lastTx != nil {
		tx := *s.lastTx
		lastTx = &tx
	}
	return State{
		ID:              s.id,
		Kind:            s.kind,
		PoolID:          s.poolID,
		Phase:           s.phase,
		Params:          s.params,
		Quote:           q,
		CanSwap:         s.canSwap,
		Err:             s.lastErr,
		LoadingTrigger:  s.loadingTrigger,
		LoadingPause:    s.loadingPause,
		Generation:      s.generation,
		AllParallel:     domain.AllLegsInMode(q.Legs, domain.PoolModeParallel),
		AllNonSmart:     domain.NoLegInMode(q.Legs, domain.PoolModeSmart),
		LastTransaction: lastTx,
		UpdatedAt:       s.updatedAt,
		RefreshedAt:     s.refreshedAt,
	}
}

// Wait blocks until no estimation is running.
func (s *Session) Wait() {
	s.inflight.Wait()
}

// Close cancels the timer and any running estimation. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.task.stop()
	s.cancel()
	s.mu.Unlock()

	s.inflight.Wait()
	metrics.ActiveSessions.WithLabelValues(string(s.kind)).Dec()
}
