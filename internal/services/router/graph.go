package router

import (
	"sort"

	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

type adjMap = map[string]map[string][]*domain.Pool

// Graph is an immutable token routing graph built from one pool snapshot.
// Stable pools with more than two members contribute an edge per token pair.
type Graph struct {
	version uint64
	adj     adjMap
	pools   map[uint64]*domain.Pool
}

func NewGraph(snapshot *domain.PoolSnapshot) *Graph {
	g := &Graph{
		adj:   make(adjMap),
		pools: make(map[uint64]*domain.Pool),
	}
	if snapshot == nil {
		return g
	}
	g.version = snapshot.Version

	for _, pool := range snapshot.Pools {
		if pool == nil || !pool.IsReady() {
			continue
		}
		g.pools[pool.ID] = pool
		for i, a := range pool.TokenIDs {
			for j, b := range pool.TokenIDs {
				if i == j || a == b {
					continue
				}
				g.addEdge(a, b, pool)
			}
		}
	}
	metrics.GraphRebuilds.Inc()
	return g
}

func (g *Graph) addEdge(from, to string, pool *domain.Pool) {
	inner, ok := g.adj[from]
	if !ok {
		inner = make(map[string][]*domain.Pool)
		g.adj[from] = inner
	}
	inner[to] = append(inner[to], pool)
}

func (g *Graph) Version() uint64 {
	return g.version
}

func (g *Graph) PoolCount() int {
	return len(g.pools)
}

func (g *Graph) Pool(id uint64) (*domain.Pool, bool) {
	p, ok := g.pools[id]
	return p, ok
}

// GetDirectRoutesForPair returns every pool that swaps tokenIn for tokenOut.
func (g *Graph) GetDirectRoutesForPair(tokenIn, tokenOut string) []*domain.Pool {
	if inner, ok := g.adj[tokenIn]; ok {
		return inner[tokenOut]
	}
	return nil
}

// GetDirectSimplePools returns the constant-product pools of the pair.
func (g *Graph) GetDirectSimplePools(tokenIn, tokenOut string) []*domain.Pool {
	direct := g.GetDirectRoutesForPair(tokenIn, tokenOut)
	out := make([]*domain.Pool, 0, len(direct))
	for _, p := range direct {
		if p.Kind == domain.PoolKindSimple {
			out = append(out, p)
		}
	}
	return out
}

// Neighbors returns the tokens directly reachable from token, sorted so that
// route search is deterministic.
func (g *Graph) Neighbors(token string) []string {
	inner := g.adj[token]
	out := make([]string, 0, len(inner))
	for t := range inner {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Intermediates returns the tokens adjacent to both tokenIn and tokenOut.
func (g *Graph) Intermediates(tokenIn, tokenOut string) []string {
	var out []string
	fromOut := g.adj[tokenOut]
	for _, mid := range g.Neighbors(tokenIn) {
		if mid == tokenOut || mid == tokenIn {
			continue
		}
		if _, ok := fromOut[mid]; ok {
			out = append(out, mid)
		}
	}
	return out
}
