package hashid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"circle-system/models"

	"github.com/redis/go-redis/v9"
)

// CachedStore keeps resolved lookup records in Redis. Records never change once
// written, so a zero ttl caches them without expiry. Misses are not cached.
type CachedStore struct {
	Store
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedStore(store Store, redisClient *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: store, redis: redisClient, ttl: ttl}
}

func cacheKey(ns models.Namespace, hashID string) string {
	return fmt.Sprintf("hash:%s:%s", ns, hashID)
}

func (c *CachedStore) FindHash(ctx context.Context, ns models.Namespace, hashID string) (*models.HashRef, error) {
	key := cacheKey(ns, hashID)

	raw, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var ref models.HashRef
		if jerr := json.Unmarshal(raw, &ref); jerr == nil {
			return &ref, nil
		}
		slog.Warn("dropping corrupt hash cache entry", "key", key)
		c.redis.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("hash cache unavailable", "key", key, "error", err)
	}

	ref, err := c.Store.FindHash(ctx, ns, hashID)
	if err != nil {
		return nil, err
	}

	if b, jerr := json.Marshal(ref); jerr == nil {
		if serr := c.redis.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			slog.Warn("hash cache write failed", "key", key, "error", serr)
		}
	}
	return ref, nil
}
