// Package indexer provides lookups over a set of pools by ID and token pair.
package indexer

import (
	"github.com/gagliardetto/solana-go"

	"github.com/defistate/defistate-amm/engine"
)

// IndexedPools defines the methods for accessing indexed pool data.
type IndexedPools interface {
	GetByID(id solana.PublicKey) (engine.Pool, bool)
	GetByPair(tokenA, tokenB solana.PublicKey) []engine.Pool
	All() []engine.Pool
}

type pair struct {
	a, b solana.PublicKey
}

// IndexablePools is an immutable index built from one pool list.
type IndexablePools struct {
	byID   map[solana.PublicKey]engine.Pool
	byPair map[pair][]engine.Pool
	all    []engine.Pool
}

// New indexes pools. The slice is copied.
func New(pools []engine.Pool) *IndexablePools {
	all := make([]engine.Pool, len(pools))
	copy(all, pools)
	engine.SortPools(all)

	byID := make(map[solana.PublicKey]engine.Pool, len(all))
	byPair := make(map[pair][]engine.Pool, len(all)*2)
	for _, p := range all {
		byID[p.ID] = p
		byPair[pair{p.TokenA, p.TokenB}] = append(byPair[pair{p.TokenA, p.TokenB}], p)
		byPair[pair{p.TokenB, p.TokenA}] = append(byPair[pair{p.TokenB, p.TokenA}], p)
	}
	return &IndexablePools{byID: byID, byPair: byPair, all: all}
}

// GetByID retrieves a pool by its address.
func (ip *IndexablePools) GetByID(id solana.PublicKey) (engine.Pool, bool) {
	p, ok := ip.byID[id]
	return p, ok
}

// GetByPair returns every pool trading tokenA against tokenB, in either
// token order, sorted by ID.
func (ip *IndexablePools) GetByPair(tokenA, tokenB solana.PublicKey) []engine.Pool {
	pools := ip.byPair[pair{tokenA, tokenB}]
	out := make([]engine.Pool, len(pools))
	copy(out, pools)
	return out
}

// All returns a copy of every indexed pool sorted by ID.
func (ip *IndexablePools) All() []engine.Pool {
	out := make([]engine.Pool, len(ip.all))
	copy(out, ip.all)
	return out
}
