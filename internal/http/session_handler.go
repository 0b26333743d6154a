package http

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
	"github.com/hxuan190/swap-engine/internal/services/session"
)

type SessionManager interface {
	Create(ctx context.Context, req session.Request) (*session.Session, error)
	Get(id string) (*session.Session, error)
	Update(ctx context.Context, id string, req session.Request) (*session.Session, error)
	Delete(id string) error
}

type SessionHandler struct {
	sessions SessionManager
}

func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("", h.create)
	pub.GET("/:id", h.get)
	pub.PUT("/:id", h.update)
	pub.DELETE("/:id", h.delete)
	pub.POST("/:id/pause", h.pause)
	pub.POST("/:id/resume", h.resume)
	pub.POST("/:id/refresh", h.refresh)
	pub.POST("/:id/swap", h.swap)
}

func (h *SessionHandler) Root() string {
	return "/session"
}

// SessionRequest opens or edits a quote session
type SessionRequest struct {
	// Input token contract id. Optional on update.
	TokenIn string `json:"tokenIn" example:"usdt.tether-token.near"`

	// Output token contract id. Optional on update.
	TokenOut string `json:"tokenOut" example:"usdc.near"`

	// Readable input amount. Omit to keep the current value, send "" to clear it.
	Amount *string `json:"amount" example:"100"`

	// Slippage tolerance in percent. Omit to keep the current value.
	Slippage *float64 `json:"slippage" example:"0.5"`

	// Binds a new session to one stable pool. Ignored on update.
	StablePoolID *uint64 `json:"stablePoolId" example:"1910"`
}

func (r SessionRequest) toRequest() session.Request {
	return session.Request{
		TokenIn:      r.TokenIn,
		TokenOut:     r.TokenOut,
		AmountIn:     r.Amount,
		Slippage:     r.Slippage,
		StablePoolID: r.StablePoolID,
	}
}

// SessionResponse is the current state of a quote session
type SessionResponse struct {
	ID     string `json:"id" example:"5f0c6d2e-8a61-4f7a-9d43-1c2b9e0a7f11"`
	Kind   string `json:"kind" enums:"standard,stable" example:"standard"`
	PoolID uint64 `json:"poolId,omitempty" example:"1910"`

	// idle, estimating, quoted or errored
	Phase string `json:"phase" example:"quoted"`

	TokenIn  string  `json:"tokenIn" example:"usdt.tether-token.near"`
	TokenOut string  `json:"tokenOut" example:"usdc.near"`
	AmountIn string  `json:"amountIn" example:"100"`
	Slippage float64 `json:"slippage" example:"0.5"`

	// Readable quote amounts
	TokenOutAmount string `json:"tokenOutAmount" example:"99.95"`
	MinAmountOut   string `json:"minAmountOut" example:"99.45025"`
	// Output before the pool fee, stable sessions only
	NoFeeAmount string `json:"noFeeAmount,omitempty" example:"100"`

	AverageFeeBps float64   `json:"averageFeeBps" example:"5"`
	Mode          string    `json:"mode,omitempty" example:"stable"`
	Legs          []LegInfo `json:"legs"`

	CanSwap bool   `json:"canSwap"`
	Error   string `json:"error,omitempty"`

	// A background refresh is in flight
	LoadingTrigger bool `json:"loadingTrigger"`
	// Periodic refresh is paused
	LoadingPause bool `json:"loadingPause"`

	AllParallel bool   `json:"allParallel"`
	AllNonSmart bool   `json:"allNonSmart"`
	Generation  uint64 `json:"generation"`

	LastTransaction *domain.PendingTransaction `json:"lastTransaction,omitempty"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

func toSessionResponse(st session.State) SessionResponse {
	resp := SessionResponse{
		ID:              st.ID,
		Kind:            string(st.Kind),
		PoolID:          st.PoolID,
		Phase:           string(st.Phase),
		TokenIn:         st.Params.TokenIn.ID,
		TokenOut:        st.Params.TokenOut.ID,
		AmountIn:        st.Params.AmountIn,
		Slippage:        st.Params.Slippage,
		TokenOutAmount:  st.Quote.TokenOutAmount,
		MinAmountOut:    st.Quote.MinAmountOut,
		NoFeeAmount:     st.Quote.NoFeeAmount,
		AverageFeeBps:   st.Quote.AverageFeeBps,
		Mode:            string(st.Quote.Mode),
		Legs:            toLegInfos(st.Quote.Legs),
		CanSwap:         st.CanSwap,
		LoadingTrigger:  st.LoadingTrigger,
		LoadingPause:    st.LoadingPause,
		AllParallel:     st.AllParallel,
		AllNonSmart:     st.AllNonSmart,
		Generation:      st.Generation,
		LastTransaction: st.LastTransaction,
		UpdatedAt:       st.UpdatedAt,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		httputil.NotFound(c, err.Error())
	case errors.Is(err, session.ErrNotStable), errors.Is(err, session.ErrClosed):
		httputil.BadRequest(c, err.Error())
	case errors.Is(err, session.ErrCannotSwap):
		httputil.HTTPError(c, common.HTTPErrorUnprocessable(err.Error()))
	default:
		httputil.FromError(c, err)
	}
}

// @Summary Open a quote session
// @Description Starts a session that estimates the swap right away and refreshes it in the background.
// @Description Pass stablePoolId to quote one stable pool only.
// @Tags session
// @Accept json
// @Produce json
// @Param request body SessionRequest true "Session parameters"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} httputil.Response
// @Router /api/v1/session [post]
func (h *SessionHandler) create(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	if req.TokenIn == "" || req.TokenOut == "" {
		httputil.BadRequest(c, "tokenIn and tokenOut are required")
		return
	}
	s, err := h.sessions.Create(c.Request.Context(), req.toRequest())
	if err != nil {
		sessionError(c, err)
		return
	}
	httputil.Success(c, toSessionResponse(s.Snapshot()))
}

// @Summary Get a quote session
// @Tags session
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/session/{id} [get]
func (h *SessionHandler) get(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	httputil.Success(c, toSessionResponse(s.Snapshot()))
}

// @Summary Edit a quote session
// @Description A token or amount change re-estimates, a slippage-only change recomputes the minimum output.
// @Tags session
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param request body SessionRequest true "Changed parameters"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/session/{id} [put]
func (h *SessionHandler) update(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid body: "+err.Error())
		return
	}
	s, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req.toRequest())
	if err != nil {
		sessionError(c, err)
		return
	}
	httputil.Success(c, toSessionResponse(s.Snapshot()))
}

// @Summary Close a quote session
// @Tags session
// @Param id path string true "Session id"
// @Success 200 {object} httputil.Response
// @Router /api/v1/session/{id} [delete]
func (h *SessionHandler) delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		sessionError(c, err)
		return
	}
	httputil.Success(c, gin.H{"id": c.Param("id")})
}

func (h *SessionHandler) pause(c *gin.Context) {
	h.apply(c, func(s *session.Session) error { return s.SetPaused(true) })
}

func (h *SessionHandler) resume(c *gin.Context) {
	h.apply(c, func(s *session.Session) error { return s.SetPaused(false) })
}

func (h *SessionHandler) refresh(c *gin.Context) {
	h.apply(c, func(s *session.Session) error { return s.TriggerRefresh() })
}

func (h *SessionHandler) apply(c *gin.Context, fn func(s *session.Session) error) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	if err := fn(s); err != nil {
		sessionError(c, err)
		return
	}
	httputil.Success(c, toSessionResponse(s.Snapshot()))
}

// SwapRequest confirms the current quote of a session
type SwapRequest struct {
	// Pay from the wallet balance instead of the exchange deposit
	UseNearBalance bool `json:"useNearBalance" example:"true"`
}

// @Summary Submit the session quote
// @Description Builds the exchange transactions for the current quote and hands them to the wallet bridge.
// @Tags session
// @Accept json
// @Produce json
// @Param id path string true "Session id"
// @Param request body SwapRequest false "Swap options"
// @Success 200 {object} domain.PendingTransaction
// @Failure 422 {object} httputil.Response "No executable quote"
// @Failure 502 {object} httputil.Response "Submission failed"
// @Router /api/v1/session/{id}/swap [post]
func (h *SessionHandler) swap(c *gin.Context) {
	var req SwapRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.BadRequest(c, "invalid body: "+err.Error())
			return
		}
	}
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	tx, err := s.MakeSwap(c.Request.Context(), req.UseNearBalance)
	if err != nil {
		sessionError(c, err)
		return
	}
	httputil.Success(c, tx)
}
