package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/services/executor"
	"github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

const SESSION_SERVICE = "session-service"

// TokenResolver looks up token metadata by contract id.
type TokenResolver interface {
	GetToken(ctx context.Context, id string) (domain.Token, error)
}

type ManagerOptions struct {
	RefreshInterval time.Duration
	DefaultSlippage float64
	StablePoolIDs   []uint64
	IdleTimeout     time.Duration
	CallbackPath    string
	Clock           Clock
}

// Request is a form edit in token ids. A nil AmountIn or Slippage keeps the
// current value, or the default on creation. A blank AmountIn clears the amount.
type Request struct {
	TokenIn  string
	TokenOut string
	AmountIn *string
	Slippage *float64
	// StablePoolID binds a new session to one stable pool.
	StablePoolID *uint64
}

type Manager struct {
	container.BaseDIInstance
	logger *common.ServiceLogger

	tokens    TokenResolver
	estimator Estimator
	submitter Submitter
	opts      ManagerOptions
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewManager(tokens TokenResolver, estimator Estimator, submitter Submitter, opts ManagerOptions) *Manager {
	m := &Manager{}
	m.init(tokens, estimator, submitter, opts)
	return m
}

func (m *Manager) init(tokens TokenResolver, estimator Estimator, submitter Submitter, opts ManagerOptions) {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = config.DefaultRefreshInterval
	}
	if opts.DefaultSlippage <= 0 {
		opts.DefaultSlippage = config.DefaultSlippage
	}
	m.tokens = tokens
	m.estimator = estimator
	m.submitter = submitter
	m.opts = opts
	m.now = time.Now
	m.sessions = make(map[string]*Session)
	m.stopCh = make(chan struct{})
	m.logger = common.NewServiceLogger(m)
}

func (m *Manager) ID() string {
	return SESSION_SERVICE
}

func (m *Manager) Configure(c container.IContainer) error {
	swapCfg := c.GetConfig(config.SWAP_CONFIG_KEY).(*config.SwapConfig)
	m.init(
		c.Instance(market.MARKET_SERVICE).(*market.Service),
		c.Instance(router.ESTIMATOR_SERVICE).(*router.Estimator),
		c.Instance(executor.EXECUTOR_SERVICE).(*executor.Submitter),
		ManagerOptions{
			RefreshInterval: swapCfg.RefreshInterval,
			DefaultSlippage: swapCfg.DefaultSlippage,
			StablePoolIDs:   swapCfg.StablePoolIDs,
			IdleTimeout:     swapCfg.SessionIdleTimeout,
			CallbackPath:    swapCfg.CallbackPath,
		},
	)
	return nil
}

func (m *Manager) Start() error {
	if m.opts.IdleTimeout > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return nil
}

func (m *Manager) Stop() error {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
	m.wg.Wait()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (m *Manager) isStablePool(id uint64) bool {
	for _, p := range m.opts.StablePoolIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (m *Manager) sessionConfig() Config {
	return Config{
		RefreshInterval: m.opts.RefreshInterval,
		CallbackPath:    m.opts.CallbackPath,
		Clock:           m.opts.Clock,
	}
}

// Create opens a session and starts its first estimation.
func (m *Manager) Create(ctx context.Context, req Request) (*Session, error) {
	params, err := m.resolve(ctx, req, Params{Slippage: m.opts.DefaultSlippage})
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	var s *Session
	if req.StablePoolID != nil {
		if !m.isStablePool(*req.StablePoolID) {
			return nil, ErrNotStable
		}
		s = NewStableSession(id, *req.StablePoolID, m.estimator, m.submitter, m.sessionConfig())
	} else {
		s = NewQuoteSession(id, m.estimator, m.submitter, m.sessionConfig())
	}
	if err := s.SetParams(params); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info().Str("id", id).Str("kind", string(s.Kind())).Int("active", count).Msg("[session] created")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch()
	return s, nil
}

// Update applies a form edit to an existing session.
func (m *Manager) Update(ctx context.Context, id string, req Request) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	params, err := m.resolve(ctx, req, s.Snapshot().Params)
	if err != nil {
		return nil, err
	}
	if err := s.SetParams(params); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// IDs lists the open sessions in a stable order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// resolve turns token ids into token metadata. Fields the request leaves
// empty keep their current value.
func (m *Manager) resolve(ctx context.Context, req Request, current Params) (Params, error) {
	p := current
	if req.TokenIn != "" && req.TokenIn != p.TokenIn.ID {
		t, err := m.tokens.GetToken(ctx, req.TokenIn)
		if err != nil {
			return Params{}, err
		}
		p.TokenIn = t
	}
	if req.TokenOut != "" && req.TokenOut != p.TokenOut.ID {
		t, err := m.tokens.GetToken(ctx, req.TokenOut)
		if err != nil {
			return Params{}, err
		}
		p.TokenOut = t
	}
	if req.AmountIn != nil {
		p.AmountIn = *req.AmountIn
	}
	if req.Slippage != nil {
		p.Slippage = *req.Slippage
	}
	return p, nil
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	interval := m.opts.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle closes sessions nobody touched within the idle timeout.
func (m *Manager) sweepIdle() int {
	cutoff := m.now().Add(-m.opts.IdleTimeout)

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastTouched().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		m.logger.Info().Int("expired", len(expired)).Msg("[session] swept idle sessions")
	}
	return len(expired)
}
