package http

import (
	"github.com/hxuan190/swap-engine/internal/domain"
)

// LegInfo describes one hop of a quoted route.
type LegInfo struct {
	// Exchange pool id
	PoolID uint64 `json:"poolId" example:"1910"`

	// SIMPLE_POOL or STABLE_SWAP
	PoolKind string `json:"poolKind" example:"SIMPLE_POOL"`

	// How the leg executes: parallel, stable or smart
	Mode string `json:"mode" example:"parallel"`

	TokenIn  string `json:"tokenIn" example:"wrap.near"`
	TokenOut string `json:"tokenOut" example:"usdt.tether-token.near"`

	// Raw input amount in tokenIn base units
	AmountIn string `json:"amountIn" example:"1000000000000000000000000"`

	// Raw estimated output in tokenOut base units
	EstimateOut string `json:"estimateOut" example:"2513422"`

	FeeBps uint32 `json:"feeBps" example:"30"`

	// Pool ids and token path of the whole smart route, smart legs only
	Route     []uint64 `json:"route,omitempty"`
	NodeRoute []string `json:"nodeRoute,omitempty"`
}

func toLegInfos(legs []domain.RouteLeg) []LegInfo {
	out := make([]LegInfo, 0, len(legs))
	for _, l := range legs {
		info := LegInfo{
			PoolID:    l.PoolID,
			PoolKind:  l.PoolKind.String(),
			Mode:      string(l.Mode),
			TokenIn:   l.TokenIn,
			TokenOut:  l.TokenOut,
			FeeBps:    l.FeeBps,
			Route:     l.Route,
			NodeRoute: l.NodeRoute,
		}
		if l.AmountIn != nil {
			info.AmountIn = l.AmountIn.String()
		}
		if l.EstimateOut != nil {
			info.EstimateOut = l.EstimateOut.String()
		}
		out = append(out, info)
	}
	return out
}
