package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"creditflow/internal/models"
	"creditflow/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// rateLimitScript increments the window counter, starting the window on the first
// hit, and returns {count, pttl}.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// errNoRedis is returned when a limit must be enforced but no client is configured.
var errNoRedis = errors.New("redis client is nil")

// rateLimitExempt reports whether the running environment switches limiting off.
// The loaded config wins; APP_ENV is only consulted when none was installed.
func rateLimitExempt() bool {
	env := os.Getenv("APP_ENV")
	if cfg != nil && cfg.Env != "" {
		env = cfg.Env
	}
	switch env {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

func rateLimitKey(resource, id string) string {
	return fmt.Sprintf("rl:%s:%s", resource, id)
}

// CheckRateLimit counts one hit against resource for id in a fixed window.
// It reports whether the hit is within limit. Limiting is off in the "test",
// "development" and "stress" environments.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := hitRateLimit(ctx, rdb, resource, id, limit, window)
	return allowed, err
}

// hitRateLimit increments the window counter and returns the time left in the window.
func hitRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, time.Duration, error) {
	if rateLimitExempt() {
		return true, 0, nil
	}
	if rdb == nil {
		return false, 0, errNoRedis
	}

	span, ctx := observability.StartRedisSpan(ctx, "ratelimit")
	defer span.End()

	res, err := rateLimitScript.Run(ctx, rdb, []string{rateLimitKey(resource, id)}, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		if err == nil {
			err = fmt.Errorf("unexpected rate limit reply %v", res)
		}
		observability.RedisErrorRate.WithLabelValues("ratelimit").Inc()
		span.SetError(err)
		return false, 0, err
	}

	remaining := time.Duration(res[1]) * time.Millisecond
	if remaining < 0 {
		remaining = window
	}
	return res[0] <= int64(limit), remaining, nil
}

// RateLimit returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by authenticated actor when present, otherwise by remote IP, and fails open.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit policy for an unreachable Redis.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if actor := Actor(c); actor != "" {
			id = "actor:" + actor
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		allowed, retryAfter, err := hitRateLimit(c.UserContext(), rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					"path", c.Path(), "resource", resource, "error", err)
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					&models.AppError{Code: models.CodeUnavailable, Message: "rate limit unavailable"})
			}
			Logger.WarnContext(c.UserContext(), "rate limit fail-open",
				"resource", resource, "error", err)
			return c.Next()
		}

		if !allowed {
			secs := int(retryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				&models.AppError{Code: models.CodeRateLimited, Message: "rate limit exceeded"})
		}
		return c.Next()
	}
}
