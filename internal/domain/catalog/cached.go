package catalog

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// StoreCache stores resolved stores between requests.
type StoreCache interface {
	GetStore(ctx context.Context, id string) (*Store, bool, error)
	SetStore(ctx context.Context, s *Store, ttl time.Duration) error
	Invalidate(ctx context.Context, ids ...string) error
}

// NoopStoreCache never hits.
type NoopStoreCache struct{}

func (NoopStoreCache) GetStore(_ context.Context, _ string) (*Store, bool, error) {
	return nil, false, nil
}

func (NoopStoreCache) SetStore(_ context.Context, _ *Store, _ time.Duration) error {
	return nil
}

func (NoopStoreCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

// CachedStores resolves stores through a cache in front of a resolver.
// Cache failures are logged and fall through to the resolver.
type CachedStores struct {
	next  StoreResolver
	cache StoreCache
	ttl   time.Duration
}

var _ StoreResolver = (*CachedStores)(nil)

// NewCachedStores wraps next with cache. A zero ttl defaults to one minute.
func NewCachedStores(next StoreResolver, cache StoreCache, ttl time.Duration) *CachedStores {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStores{next: next, cache: cache, ttl: ttl}
}

// GetStore implements StoreResolver.
func (c *CachedStores) GetStore(ctx context.Context, id string) (*Store, error) {
	s, ok, err := c.cache.GetStore(ctx, id)
	switch {
	case err != nil:
		zctx.From(ctx).Warn("Store cache lookup failed", zap.String("store_id", id), zap.Error(err))
	case ok:
		return s, nil
	}

	s, err = c.next.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetStore(ctx, s, c.ttl); err != nil {
		zctx.From(ctx).Warn("Store cache write failed", zap.String("store_id", id), zap.Error(err))
	}
	return s, nil
}

// Invalidate drops a changed store from the cache.
func (c *CachedStores) Invalidate(ctx context.Context, id string) {
	if err := c.cache.Invalidate(ctx, id); err != nil {
		zctx.From(ctx).Warn("Store cache invalidation failed", zap.String("store_id", id), zap.Error(err))
	}
}
