package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Allow counts one hit for key in a fixed window. Redis failures let the
// request through and are returned for logging.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("Allow: redis.Incr: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return true, fmt.Errorf("Allow: redis.Expire: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// requester identifies the caller by auth record, falling back to the client IP.
func requester(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}

// Limit is a route middleware allowing limit requests per window and caller
// for scope (submit, claim, ...).
func (r *RateLimiter) Limit(scope string, limit int, window time.Duration) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		key := fmt.Sprintf("ratelimit:%s:%s", scope, requester(e))
		ok, err := r.Allow(e.Request.Context(), key, limit, window)
		if err != nil {
			slog.Warn("rate limiter unavailable", "scope", scope, "error", err)
		}
		if !ok {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}
		return e.Next()
	}
}

// AntiBot rejects crawler user agents and callers above perMinute requests.
func (r *RateLimiter) AntiBot(perMinute int) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if IsSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		ok, err := r.Allow(e.Request.Context(), "antibot:"+e.RealIP(), perMinute, time.Minute)
		if err != nil {
			slog.Warn("anti-bot counter unavailable", "error", err)
		}
		if !ok {
			return apis.NewTooManyRequestsError("Too many requests", nil)
		}
		return e.Next()
	}
}

var suspiciousAgents = []string{"bot", "crawler", "spider", "scraper", "curl/", "python-requests"}

func IsSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, pattern := range suspiciousAgents {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
