package middleware

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"creditflow/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// IdempotencyHeader carries the client-chosen key for a retriable POST.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

var idempotencyBeginScript = redis.NewScript(`
local key = KEYS[1]
local fingerprint = ARGV[1]
local ttl_ms = ARGV[2]

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key, "fingerprint", fingerprint, "status", "new")
  redis.call("PEXPIRE", key, ttl_ms)
  return {"new"}
end

if redis.call("HGET", key, "fingerprint") ~= fingerprint then
  return {"conflict"}
end

if redis.call("HGET", key, "status") == "completed" then
  return {"replay", redis.call("HGET", key, "response_status") or "", redis.call("HGET", key, "content_type") or "", redis.call("HGET", key, "response_body") or ""}
end

return {"in_progress"}
`)

var idempotencyCompleteScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
  return 0
end
if redis.call("HGET", key, "fingerprint") ~= ARGV[1] then
  return -1
end
redis.call("HSET", key, "status", "completed", "response_status", ARGV[3], "content_type", ARGV[4], "response_body", ARGV[5])
redis.call("PEXPIRE", key, ARGV[2])
return 1
`)

// IdempotencyState is the outcome of reserving an idempotency key.
type IdempotencyState string

const (
	IdempotencyStateNew        IdempotencyState = "new"
	IdempotencyStateReplay     IdempotencyState = "replay"
	IdempotencyStateConflict   IdempotencyState = "conflict"
	IdempotencyStateInProgress IdempotencyState = "in_progress"
)

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore reserves keys and stores the response of the first completed request.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

// NewIdempotencyStore returns a Redis-backed store namespacing keys under prefix.
func NewIdempotencyStore(client redis.UniversalClient, prefix string) *IdempotencyStore {
	if prefix == "" {
		prefix = "idem"
	}
	return &IdempotencyStore{client: client, prefix: prefix}
}

func (s *IdempotencyStore) redisKey(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, key)
}

// Begin reserves key for a request with the given fingerprint.
func (s *IdempotencyStore) Begin(ctx context.Context, scope, key, fingerprint string, ttl time.Duration) (IdempotencyState, *CachedResponse, error) {
	raw, err := idempotencyBeginScript.Run(ctx, s.client,
		[]string{s.redisKey(scope, key)},
		fingerprint,
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return "", nil, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return "", nil, fmt.Errorf("unexpected idempotency begin result %T", raw)
	}

	state := IdempotencyState(asString(values[0]))
	switch state {
	case IdempotencyStateNew, IdempotencyStateConflict, IdempotencyStateInProgress:
		return state, nil, nil
	case IdempotencyStateReplay:
		if len(values) < 4 {
			return "", nil, fmt.Errorf("unexpected replay payload")
		}
		status, err := strconv.Atoi(asString(values[1]))
		if err != nil {
			return "", nil, fmt.Errorf("parse replay status: %w", err)
		}
		body, err := base64.StdEncoding.DecodeString(asString(values[3]))
		if err != nil {
			return "", nil, fmt.Errorf("decode replay body: %w", err)
		}
		return state, &CachedResponse{StatusCode: status, ContentType: asString(values[2]), Body: body}, nil
	default:
		return "", nil, fmt.Errorf("unknown idempotency state %q", state)
	}
}

// Complete stores the response for key so later requests replay it.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint string, resp CachedResponse, ttl time.Duration) error {
	return idempotencyCompleteScript.Run(ctx, s.client,
		[]string{s.redisKey(scope, key)},
		fingerprint,
		ttl.Milliseconds(),
		resp.StatusCode,
		resp.ContentType,
		base64.StdEncoding.EncodeToString(resp.Body),
	).Err()
}

// Release drops a reservation so the client can retry after a server failure.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.client.Del(ctx, s.redisKey(scope, key)).Err()
}

func asString(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(v)
	}
}

func requestFingerprint(c *fiber.Ctx) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

// Idempotency replays the stored response when a request repeats an Idempotency-Key.
// Keys are scoped per actor. Requests without the header pass through, and so does
// everything when store is nil.
func Idempotency(store *IdempotencyStore, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(IdempotencyHeader)
		if store == nil || key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Idempotency-Key is too long",
			})
		}

		ctx := c.UserContext()
		scope := Actor(c)
		if scope == "" {
			scope = "anonymous"
		}
		fingerprint := requestFingerprint(c)

		state, cached, err := store.Begin(ctx, scope, key, fingerprint, ttl)
		if err != nil {
			observability.RedisErrorRate.WithLabelValues("idempotency").Inc()
			Logger.WarnContext(ctx, "idempotency store unavailable", "error", err)
			return c.Next()
		}

		switch state {
		case IdempotencyStateConflict:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Idempotency-Key was already used with a different request",
			})
		case IdempotencyStateInProgress:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A request with this Idempotency-Key is still in progress",
			})
		case IdempotencyStateReplay:
			c.Set("Idempotent-Replayed", "true")
			if cached.ContentType != "" {
				c.Set(fiber.HeaderContentType, cached.ContentType)
			}
			return c.Status(cached.StatusCode).Send(cached.Body)
		}

		if err := c.Next(); err != nil {
			_ = store.Release(ctx, scope, key)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			if err := store.Release(ctx, scope, key); err != nil {
				observability.RedisErrorRate.WithLabelValues("idempotency").Inc()
			}
			return nil
		}

		resp := CachedResponse{
			StatusCode:  status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := store.Complete(ctx, scope, key, fingerprint, resp, ttl); err != nil {
			observability.RedisErrorRate.WithLabelValues("idempotency").Inc()
			Logger.WarnContext(ctx, "failed to store idempotent response", "error", err)
		}
		return nil
	}
}
