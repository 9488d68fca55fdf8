package product

import (
	"context"
	"errors"
	"strconv"
	"time"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/model"

	"github.com/rs/zerolog/log"
)

// CachedAuthority memoizes Fetch results. Exists is never cached so
// mutations always see the product service's current answer.
type CachedAuthority struct {
	next  Authority
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedAuthority wraps next with a metadata cache.
func NewCachedAuthority(next Authority, c cache.Cache, ttl time.Duration) *CachedAuthority {
	return &CachedAuthority{next: next, cache: c, ttl: ttl}
}

func cacheKey(productID int64) string {
	return "product:" + strconv.FormatInt(productID, 10)
}

// Exists delegates to the wrapped authority.
func (a *CachedAuthority) Exists(ctx context.Context, productID int64) (bool, error) {
	return a.next.Exists(ctx, productID)
}

// Fetch returns cached metadata when present, otherwise fetches and stores it.
func (a *CachedAuthority) Fetch(ctx context.Context, productID int64) (*model.Product, error) {
	var p model.Product
	err := cache.GetJSON(ctx, a.cache, cacheKey(productID), &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("component", "CachedAuthority").Int64("product_id", productID).Msg("cache read failed")
	}

	fetched, err := a.next.Fetch(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, a.cache, cacheKey(productID), fetched, a.ttl); err != nil {
		log.Warn().Err(err).Str("component", "CachedAuthority").Int64("product_id", productID).Msg("cache write failed")
	}
	return fetched, nil
}

// FetchBatch serves cached entries and fetches only the misses.
func (a *CachedAuthority) FetchBatch(ctx context.Context, productIDs []int64) ([]model.Product, error) {
	products := make([]model.Product, 0, len(productIDs))
	var misses []int64
	for _, id := range productIDs {
		var p model.Product
		if err := cache.GetJSON(ctx, a.cache, cacheKey(id), &p); err == nil {
			products = append(products, p)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return products, nil
	}

	fetched, err := a.next.FetchBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	for _, p := range fetched {
		_ = cache.SetJSON(ctx, a.cache, cacheKey(p.ID), p, a.ttl)
	}
	return append(products, fetched...), nil
}

var _ Authority = (*CachedAuthority)(nil)
