package http

import (
	"context"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/http/httputil"
	"github.com/hxuan190/swap-engine/internal/services/resolver"
)

type OutcomeResolver interface {
	Resolve(ctx context.Context, nav resolver.Navigator) (*resolver.Outcome, error)
}

type TxHandler struct {
	resolver OutcomeResolver
}

func NewTxHandler(r OutcomeResolver) *TxHandler {
	return &TxHandler{resolver: r}
}

func (h *TxHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/outcome", h.getOutcome)
}

func (h *TxHandler) Root() string {
	return "/tx"
}

// requestNavigator is the navigation context a client reports: the page it
// landed on after the wallet redirect.
type requestNavigator struct {
	location string
	replaced string
}

func (n *requestNavigator) Location() string {
	return n.location
}

func (n *requestNavigator) Replace(path string) {
	n.replaced = path
}

// @Summary Resolve a wallet redirect
// @Description Looks up the transaction named by transactionHashes (last of the list) and reports whether it was
// @Description a swap and how it ended. Each hash is resolved once; repeated calls report a duplicate.
// @Description The client should replace its location with replacedPath.
// @Tags tx
// @Produce json
// @Param path query string true "Path the wallet redirected to" example("/swap")
// @Param transactionHashes query string true "Comma separated transaction hashes"
// @Param errorCode query string false "Wallet error code"
// @Success 200 {object} resolver.Outcome
// @Failure 502 {object} httputil.Response "Transaction lookup failed"
// @Router /api/v1/tx/outcome [get]
func (h *TxHandler) getOutcome(c *gin.Context) {
	query := c.Request.URL.Query()
	path := query.Get("path")
	if path == "" {
		httputil.BadRequest(c, "path is required")
		return
	}
	query.Del("path")

	location := (&url.URL{Path: path, RawQuery: query.Encode()}).String()
	nav := &requestNavigator{location: location}

	outcome, err := h.resolver.Resolve(c.Request.Context(), nav)
	if err != nil {
		httputil.FromError(c, err)
		return
	}
	httputil.Success(c, outcome)
}
