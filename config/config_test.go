package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, 20, cfg.HashIDLength)
	assert.Equal(t, 8, cfg.TransferCodeLength)
	assert.Equal(t, 30*time.Second, cfg.SubmissionGuardTTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.TransferPaymentWindow)
	assert.Equal(t, 0.6, cfg.BreakerFailureRatio)
	assert.False(t, cfg.OnlineCheckoutEnabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("HASH_ID_LENGTH", "32")
	t.Setenv("SUBMISSION_GUARD_TTL", "1m")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("BREAKER_FAILURE_RATIO", "0.25")
	t.Setenv("CHECKOUT_BASE_URL", "https://gw.example.com")
	t.Setenv("CHECKOUT_CLIENT_ID", "id")
	t.Setenv("CHECKOUT_CLIENT_SECRET", "secret")

	cfg := LoadConfig()
	assert.Equal(t, 32, cfg.HashIDLength)
	assert.Equal(t, time.Minute, cfg.SubmissionGuardTTL)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, 0.25, cfg.BreakerFailureRatio)
	assert.True(t, cfg.OnlineCheckoutEnabled())
}

func TestGetEnvAsDuration_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("IDEMPOTENCY_TTL", "forever")
	assert.Equal(t, 24*time.Hour, LoadConfig().IdempotencyTTL)
}
