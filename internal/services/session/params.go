package session

import (
	"errors"
	"math/big"
	"time"

	"github.com/hxuan190/swap-engine/internal/domain"
)

var (
	ErrClosed      = errors.New("session closed")
	ErrCannotSwap  = errors.New("no executable quote")
	ErrNotFound    = errors.New("session not found")
	ErrNotStable   = errors.New("pool is not a configured stable pool")
	ErrMissingPool = errors.New("stable session needs a pool id")
)

type Kind string

const (
	KindStandard Kind = "standard"
	KindStable   Kind = "stable"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEstimating Phase = "estimating"
	PhaseQuoted     Phase = "quoted"
	PhaseErrored    Phase = "errored"
)

// Params are the user inputs of a session. AmountIn is readable.
type Params struct {
	TokenIn  domain.Token
	TokenOut domain.Token
	AmountIn string
	// Slippage is a percentage, e.g. 0.5.
	Slippage float64
}

func (p Params) sameRoute(o Params) bool {
	return p.TokenIn.ID == o.TokenIn.ID && p.TokenOut.ID == o.TokenOut.ID && p.AmountIn == o.AmountIn
}

func (p Params) ready() bool {
	return !p.TokenIn.IsZero() && !p.TokenOut.IsZero()
}

// Quote is the visible result of the latest estimation.
type Quote struct {
	TokenOutAmount string
	MinAmountOut   string
	AverageFeeBps  float64
	Mode           domain.PoolMode
	Legs           []domain.RouteLeg
	// NoFeeAmount is only reported by stable sessions.
	NoFeeAmount string

	// amountOut is the raw output the minimum is derived from.
	amountOut *big.Int
}

// State is a point-in-time copy of a session.
type State struct {
	ID     string
	Kind   Kind
	PoolID uint64
	Phase  Phase

	Params Params
	Quote  Quote

	CanSwap        bool
	Err            error
	LoadingTrigger bool
	LoadingPause   bool
	Generation     uint64

	AllParallel bool
	AllNonSmart bool

	LastTransaction *domain.PendingTransaction
	UpdatedAt       time.Time
	// RefreshedAt is when a background pass last refreshed pool state.
	RefreshedAt time.Time
}
