package vcs

import (
	"context"
	"time"

	"exforge/internal/common/cache"
)

const (
	defaultBranchKeyPrefix = "exforge:vcs:branch:"
	defaultBranchTTL       = 30 * time.Minute
	defaultBranchEmptyTTL  = time.Minute
)

// CachedBranches caches default branch lookups in Redis. Repository deletion
// drops the cached value.
type CachedBranches struct {
	VersionControlClient
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedBranches(client VersionControlClient, c cache.Cache, ttl time.Duration) *CachedBranches {
	if ttl <= 0 {
		ttl = defaultBranchTTL
	}
	return &CachedBranches{VersionControlClient: client, cache: c, ttl: ttl}
}

func (c *CachedBranches) GetDefaultBranch(ctx context.Context, uri string) (string, error) {
	return cache.GetWithCached(ctx, c.cache, defaultBranchKeyPrefix+uri, cache.JitterTTL(c.ttl), defaultBranchEmptyTTL,
		func(b string) bool { return b == "" },
		func(b string) string { return b },
		func(data string) (string, error) { return data, nil },
		func(ctx context.Context) (string, error) {
			return c.VersionControlClient.GetDefaultBranch(ctx, uri)
		})
}

func (c *CachedBranches) DeleteRepository(ctx context.Context, uri string) error {
	if err := c.VersionControlClient.DeleteRepository(ctx, uri); err != nil {
		return err
	}
	_ = c.cache.Del(ctx, defaultBranchKeyPrefix+uri)
	return nil
}
