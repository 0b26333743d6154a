package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

// SwapEstimator is the part of the router the quote endpoint needs.
type SwapEstimator interface {
	EstimateSwap(ctx context.Context, req router.SwapRequest, refresh bool) (*domain.Estimate, error)
}

type TokenLookup interface {
	GetToken(ctx context.Context, id string) (domain.Token, error)
}

type QuoteHandler struct {
	estimator       SwapEstimator
	tokens          TokenLookup
	defaultSlippage float64
}

func NewQuoteHandler(estimator SwapEstimator, tokens TokenLookup, defaultSlippage float64) *QuoteHandler {
	return &QuoteHandler{estimator: estimator, tokens: tokens, defaultSlippage: defaultSlippage}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for a one-shot swap quote
type QuoteRequest struct {
	// Input token contract id
	TokenIn string `form:"tokenIn" binding:"required" example:"wrap.near"`

	// Output token contract id
	TokenOut string `form:"tokenOut" binding:"required" example:"usdt.tether-token.near"`

	// Readable input amount in tokenIn units, e.g. "1.5"
	Amount string `form:"amount" binding:"required" example:"1.5"`

	// Slippage tolerance in percent. Default: 0.5
	Slippage *float64 `form:"slippage" example:"0.5"`
}

// QuoteResponse is the best route found for the request
type QuoteResponse struct {
	TokenIn  string `json:"tokenIn" example:"wrap.near"`
	TokenOut string `json:"tokenOut" example:"usdt.tether-token.near"`

	// Readable amounts
	AmountIn     string `json:"amountIn" example:"1.5"`
	AmountOut    string `json:"amountOut" example:"3.770133"`
	MinAmountOut string `json:"minAmountOut" example:"3.751282"`

	// parallel, stable or smart
	Mode string `json:"mode" example:"parallel"`

	// Input weighted fee for parallel routes, summed hop fees for smart routes
	AverageFeeBps float64 `json:"averageFeeBps" example:"30"`

	Legs        []LegInfo `json:"legs"`
	AllParallel bool      `json:"allParallel"`
	AllNonSmart bool      `json:"allNonSmart"`
}

// @Summary Get swap quote
// @Description Estimate the best route for a token pair across direct pools (split up to three ways),
// @Description the designated stable pools and two-hop routes through one intermediate token.
// @Tags quote
// @Produce json
// @Param tokenIn query string true "Input token contract id" example("wrap.near")
// @Param tokenOut query string true "Output token contract id" example("usdt.tether-token.near")
// @Param amount query string true "Readable input amount" example("1.5")
// @Param slippage query number false "Slippage tolerance in percent" default(0.5)
// @Success 200 {object} QuoteResponse
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 422 {object} httputil.Response "No route or invalid amount"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	slippage := h.defaultSlippage
	if req.Slippage != nil {
		slippage = *req.Slippage
	}
	if slippage < 0 || slippage >= 100 {
		httputil.BadRequest(c, "slippage must be within [0, 100)")
		return
	}

	ctx := c.Request.Context()
	tokenIn, err := h.tokens.GetToken(ctx, req.TokenIn)
	if err != nil {
		httputil.NotFound(c, "unknown tokenIn: "+err.Error())
		return
	}
	tokenOut, err := h.tokens.GetToken(ctx, req.TokenOut)
	if err != nil {
		httputil.NotFound(c, "unknown tokenOut: "+err.Error())
		return
	}

	est, err := h.estimator.EstimateSwap(ctx, router.SwapRequest{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: req.Amount}, false)
	if err != nil {
		httputil.FromError(c, err)
		return
	}

	amountOut := common.ToReadable(tokenOut.Decimals, est.AmountOut)
	httputil.Success(c, QuoteResponse{
		TokenIn:       tokenIn.ID,
		TokenOut:      tokenOut.ID,
		AmountIn:      req.Amount,
		AmountOut:     amountOut,
		MinAmountOut:  common.MinAmountOut(tokenOut.Decimals, slippage, amountOut),
		Mode:          string(est.Mode),
		AverageFeeBps: est.AverageFeeBps,
		Legs:          toLegInfos(est.Legs),
		AllParallel:   domain.AllLegsInMode(est.Legs, domain.PoolModeParallel),
		AllNonSmart:   domain.NoLegInMode(est.Legs, domain.PoolModeSmart),
	})
}
