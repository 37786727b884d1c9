package middleware

import (
	"context"
	"fmt"
	"time"

	"exforge/internal/common/cache"
	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultRateLimitTimeout = 200 * time.Millisecond

// RateLimitPolicy bounds requests per acting user and per client IP within a
// fixed window. Zero maxima disable the respective check.
type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
}

// RateLimiter enforces fixed-window limits using Redis counters.
type RateLimiter struct {
	cache   cache.BasicOps
	prefix  string
	timeout time.Duration
}

func NewRateLimiter(c cache.BasicOps, prefix string) *RateLimiter {
	if prefix == "" {
		prefix = "exforge:rate"
	}
	return &RateLimiter{cache: c, prefix: prefix, timeout: defaultRateLimitTimeout}
}

// Allow counts one request on key and fails with TooManyRequests once the
// window holds more than max requests.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.cache.Incr(ctxCache, key)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	if count == 1 {
		if err := l.cache.Expire(ctxCache, key, window); err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

// RateLimit applies policy to the route it is mounted on.
func RateLimit(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.Window <= 0 {
			c.Next()
			return
		}
		if policy.IPMax > 0 {
			key := fmt.Sprintf("%s:ip:%s:%s", limiter.prefix, c.ClientIP(), routeKey)
			if err := limiter.Allow(c.Request.Context(), key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if login := UserLogin(c); login != "" && policy.UserMax > 0 {
			key := fmt.Sprintf("%s:user:%s:%s", limiter.prefix, login, routeKey)
			if err := limiter.Allow(c.Request.Context(), key, policy.UserMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
