// Package pricing resolves soil code prices: the flat price cache file, the
// policy that decides when to rebuild it, and the per-code remote lookup used
// for cache misses.
package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"bonita/core/types"
)

// Source resolves a single soil code price remotely.
type Source interface {
	Resolve(ctx context.Context, code types.SoilCode) (decimal.Decimal, error)
}

// CompositeResolver consults the cache first and falls back to the remote
// source. Remote results are not written back to the cache; they only serve
// the current run.
type CompositeResolver struct {
	Cache  *Cache
	Remote Source
}

// NewResolver creates a composite resolver. cache may be nil (no local cache).
func NewResolver(cache *Cache, remote Source) *CompositeResolver {
	return &CompositeResolver{Cache: cache, Remote: remote}
}

// Resolve returns the price of code and where it came from.
func (r *CompositeResolver) Resolve(ctx context.Context, code types.SoilCode) (decimal.Decimal, types.PriceSource, error) {
	if price, ok := r.Cache.Lookup(code); ok {
		return price, types.PriceFromCache, nil
	}
	price, err := r.Remote.Resolve(ctx, code)
	if err != nil {
		return decimal.Decimal{}, "", err
	}
	return price, types.PriceFromRemote, nil
}
