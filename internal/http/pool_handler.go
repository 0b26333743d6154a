package http

import (
	"context"
	"errors"
	"math/big"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
	"github.com/hxuan190/swap-engine/internal/services/market"
)

type PoolReader interface {
	GetPool(ctx context.Context, id uint64) (*domain.Pool, error)
	GetStablePool(ctx context.Context, id uint64, refresh bool) (*domain.Pool, error)
	Stats() (int, uint64)
}

type PoolHandler struct {
	pools PoolReader
}

func NewPoolHandler(pools PoolReader) *PoolHandler {
	return &PoolHandler{pools: pools}
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/stats", h.getStats)
	pub.GET("/stable/:id", h.getStablePool)
	pub.GET("/:id", h.getPool)
}

func (h *PoolHandler) Root() string {
	return "/pool"
}

// PoolStatsResponse describes the pool snapshot quotes are computed against
type PoolStatsResponse struct {
	// Number of pools in the current snapshot
	PoolCount int `json:"poolCount" example:"4127"`

	// Snapshot version, bumped on every refresh
	Version uint64 `json:"version" example:"52"`
}

// @Summary Pool snapshot statistics
// @Tags pool
// @Produce json
// @Success 200 {object} PoolStatsResponse
// @Router /api/v1/pool/stats [get]
func (h *PoolHandler) getStats(c *gin.Context) {
	count, version := h.pools.Stats()
	httputil.Success(c, PoolStatsResponse{PoolCount: count, Version: version})
}

// PoolResponse is the state of one exchange pool
type PoolResponse struct {
	ID       uint64   `json:"id" example:"1910"`
	Kind     string   `json:"kind" enums:"SIMPLE_POOL,STABLE_SWAP" example:"STABLE_SWAP"`
	TokenIDs []string `json:"tokenIds"`

	// Raw reserves aligned with tokenIds
	Reserves []string `json:"reserves"`

	FeeBps            uint32 `json:"feeBps" example:"5"`
	SharesTotalSupply string `json:"sharesTotalSupply,omitempty"`

	// Stable pools only
	Amp      uint64   `json:"amp,omitempty" example:"240"`
	Decimals []uint8  `json:"decimals,omitempty"`
	CAmounts []string `json:"cAmounts,omitempty"`
}

func amountStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "0"
			continue
		}
		out[i] = v.String()
	}
	return out
}

func toPoolResponse(p *domain.Pool) PoolResponse {
	resp := PoolResponse{
		ID:       p.ID,
		Kind:     p.Kind.String(),
		TokenIDs: p.TokenIDs,
		Reserves: amountStrings(p.Reserves),
		FeeBps:   p.FeeBps,
	}
	if p.SharesTotalSupply != nil {
		resp.SharesTotalSupply = p.SharesTotalSupply.String()
	}
	if p.Stable != nil {
		resp.Amp = p.Stable.Amp
		resp.Decimals = p.Stable.Decimals
		resp.CAmounts = amountStrings(p.Stable.CAmounts)
	}
	return resp
}

func parsePoolID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(c, "invalid pool id")
		return 0, false
	}
	return id, true
}

func poolError(c *gin.Context, err error) {
	if errors.Is(err, market.ErrPoolNotFound) {
		httputil.NotFound(c, err.Error())
		return
	}
	httputil.FromError(c, err)
}

// @Summary Get pool
// @Tags pool
// @Produce json
// @Param id path int true "Pool id"
// @Success 200 {object} PoolResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/pool/{id} [get]
func (h *PoolHandler) getPool(c *gin.Context) {
	id, ok := parsePoolID(c)
	if !ok {
		return
	}
	pool, err := h.pools.GetPool(c.Request.Context(), id)
	if err != nil {
		poolError(c, err)
		return
	}
	httputil.Success(c, toPoolResponse(pool))
}

// @Summary Get stable pool
// @Description Returns the stable-swap view of a pool including amplification and comparable amounts.
// @Tags pool
// @Produce json
// @Param id path int true "Pool id"
// @Param refresh query bool false "Bypass the cache"
// @Success 200 {object} PoolResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/pool/stable/{id} [get]
func (h *PoolHandler) getStablePool(c *gin.Context) {
	id, ok := parsePoolID(c)
	if !ok {
		return
	}
	refresh := c.Query("refresh") == "true"
	pool, err := h.pools.GetStablePool(c.Request.Context(), id, refresh)
	if err != nil {
		poolError(c, err)
		return
	}
	httputil.Success(c, toPoolResponse(pool))
}
