package testutil

import (
	"testing"

	"exforge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewRedisCache starts an in-process Redis server for the test and returns a
// cache connected to it.
func NewRedisCache(t testing.TB) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	AssertNil(t, err)
	return c, server
}
