package creation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"circle-system/internal/status"
	"circle-system/models"

	"github.com/redis/go-redis/v9"
)

const (
	guardKeyPrefix = "submission:inflight:"
	idemKeyPrefix  = "submission:idem:"
)

// Guard holds a short-lived Redis key per scope and user while a submission
// runs, so a double submit is rejected instead of racing. A nil Guard or a
// Guard without a client lets every submission through.
type Guard struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewGuard(redisClient *redis.Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Guard{redis: redisClient, ttl: ttl}
}

func guardKey(scope, userID string) string {
	return guardKeyPrefix + scope + ":" + userID
}

// Acquire returns status.ErrSubmissionInFlight when the key is already held.
// The returned release func is always safe to call.
func (g *Guard) Acquire(ctx context.Context, scope, userID string) (func(), error) {
	if g == nil || g.redis == nil {
		return func() {}, nil
	}

	key := guardKey(scope, userID)
	ok, err := g.redis.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		return func() {}, fmt.Errorf("Acquire: redis.SetNX: %w", err)
	}
	if !ok {
		return func() {}, status.ErrSubmissionInFlight
	}

	return func() {
		if err := g.redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			slog.Warn("release submission guard", "key", key, "error", err)
		}
	}, nil
}

// IdempotencyCache stores creation results under a caller supplied key so
// a retried request after a lost response replays the first result.
type IdempotencyCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewIdempotencyCache(redisClient *redis.Client, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyCache{redis: redisClient, ttl: ttl}
}

func idemKey(kind, userID, key string) string {
	return idemKeyPrefix + kind + ":" + userID + ":" + key
}

// Get reports a stored result. Redis failures read as a miss.
func (c *IdempotencyCache) Get(ctx context.Context, kind, userID, key string) (*models.CreationResult, bool) {
	if c == nil || c.redis == nil || key == "" {
		return nil, false
	}

	data, err := c.redis.Get(ctx, idemKey(kind, userID, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("idempotency lookup failed", "kind", kind, "error", err)
		}
		return nil, false
	}

	var res models.CreationResult
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("idempotency entry unreadable", "kind", kind, "error", err)
		return nil, false
	}
	return &res, true
}

func (c *IdempotencyCache) Put(ctx context.Context, kind, userID, key string, res *models.CreationResult) {
	if c == nil || c.redis == nil || key == "" {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("idempotency encode failed", "kind", kind, "error", err)
		return
	}
	if err := c.redis.Set(ctx, idemKey(kind, userID, key), data, c.ttl).Err(); err != nil {
		slog.Warn("idempotency store failed", "kind", kind, "error", err)
	}
}
