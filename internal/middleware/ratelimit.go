package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"eventhub/internal/cache"
	apperrors "eventhub/internal/errors"
	"eventhub/internal/logging"
)

const redisTimeout = 500 * time.Millisecond

// RedisStore is a fixed-window rate limiter store backed by Redis counters.
// When Redis fails, decisions fall back to the in-memory store.
type RedisStore struct {
	cache    *cache.Client
	limit    int64
	window   time.Duration
	fallback middleware.RateLimiterStore
	log      logging.Logger
}

// NewRedisStore creates a Redis-backed store allowing limit requests per window.
func NewRedisStore(c *cache.Client, limit int, window time.Duration, fallback middleware.RateLimiterStore, log logging.Logger) *RedisStore {
	return &RedisStore{cache: c, limit: int64(limit), window: window, fallback: fallback, log: log}
}

// Allow implements middleware.RateLimiterStore.
func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	count, err := s.cache.Incr(ctx, "ratelimit:"+identifier, s.window)
	if err != nil {
		s.log.Warnj(log.JSON{"action": "rate_limit_redis_failed", "identifier": identifier, "error": err.Error()})
		if s.fallback != nil {
			return s.fallback.Allow(identifier)
		}
		return true, nil
	}
	if count > s.limit {
		s.log.Warnj(log.JSON{"action": "rate_limit_exceeded", "identifier": identifier, "count": count})
		return false, nil
	}
	return true, nil
}

// NewMemoryStore creates an in-process token bucket store allowing about
// limit requests per window.
func NewMemoryStore(limit int, window time.Duration) middleware.RateLimiterStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(limit) / window.Seconds()),
		Burst:     limit,
		ExpiresIn: window,
	})
}

// RateLimit limits requests per client IP using store.
func RateLimit(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error: apperrors.ErrTooManyRequests.Error(),
				Code:  "TOO_MANY_REQUESTS",
			})
		},
	})
}
