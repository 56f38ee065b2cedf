package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// Online checkout gateway
	CheckoutBaseURL      string
	CheckoutTokenURL     string
	CheckoutClientID     string
	CheckoutClientSecret string
	CheckoutMerchantID   string
	CheckoutKeyID        string
	CheckoutHMACKey      string
	CheckoutReturnURL    string
	CheckoutWebhookKey   string
	CheckoutSessionTTL   time.Duration
	Currency             string

	// Bank transfer
	BankName              string
	BankBranch            string
	BankAccountNumber     string
	BankAccountHolder     string
	TransferInstructions  string
	TransferPaymentWindow time.Duration

	// Identifiers
	HashIDLength       int
	TransferCodeLength int
	HashCacheTTL       time.Duration

	// Submissions
	SubmissionGuardTTL time.Duration
	IdempotencyTTL     time.Duration

	// Circuit breaker around the gateways
	BreakerFailureRatio float64
	BreakerTimeout      time.Duration

	// Rate limiting
	SubmitRateLimit  int
	ClaimRateLimit   int
	RateLimitWindow  time.Duration
	AntiBotPerMinute int

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "circle-system"),

		// Checkout
		CheckoutBaseURL:      getEnv("CHECKOUT_BASE_URL", ""),
		CheckoutTokenURL:     getEnv("CHECKOUT_TOKEN_URL", ""),
		CheckoutClientID:     getEnv("CHECKOUT_CLIENT_ID", ""),
		CheckoutClientSecret: getEnv("CHECKOUT_CLIENT_SECRET", ""),
		CheckoutMerchantID:   getEnv("CHECKOUT_MERCHANT_ID", ""),
		CheckoutKeyID:        getEnv("CHECKOUT_KEY_ID", ""),
		CheckoutHMACKey:      getEnv("CHECKOUT_HMAC_KEY", ""),
		CheckoutReturnURL:    getEnv("CHECKOUT_RETURN_URL", "http://localhost:3000/payments"),
		CheckoutWebhookKey:   getEnv("CHECKOUT_WEBHOOK_KEY", ""),
		CheckoutSessionTTL:   getEnvAsDuration("CHECKOUT_SESSION_TTL", "30m"),
		Currency:             getEnv("CURRENCY", "JPY"),

		// Bank transfer
		BankName:              getEnv("BANK_NAME", ""),
		BankBranch:            getEnv("BANK_BRANCH", ""),
		BankAccountNumber:     getEnv("BANK_ACCOUNT_NUMBER", ""),
		BankAccountHolder:     getEnv("BANK_ACCOUNT_HOLDER", ""),
		TransferInstructions:  getEnv("TRANSFER_INSTRUCTIONS_URL", "http://localhost:3000/transfer"),
		TransferPaymentWindow: getEnvAsDuration("TRANSFER_PAYMENT_WINDOW", "168h"),

		// Identifiers
		HashIDLength:       getEnvAsInt("HASH_ID_LENGTH", 20),
		TransferCodeLength: getEnvAsInt("TRANSFER_CODE_LENGTH", 8),
		HashCacheTTL:       getEnvAsDuration("HASH_CACHE_TTL", "0s"),

		// Submissions
		SubmissionGuardTTL: getEnvAsDuration("SUBMISSION_GUARD_TTL", "30s"),
		IdempotencyTTL:     getEnvAsDuration("IDEMPOTENCY_TTL", "24h"),

		// Circuit breaker
		BreakerFailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerTimeout:      getEnvAsDuration("BREAKER_TIMEOUT", "30s"),

		// Rate limiting
		SubmitRateLimit:  getEnvAsInt("SUBMIT_RATE_LIMIT", 5),
		ClaimRateLimit:   getEnvAsInt("CLAIM_RATE_LIMIT", 10),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		AntiBotPerMinute: getEnvAsInt("ANTIBOT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "15s"),
	}
}

// OnlineCheckoutEnabled reports whether enough of the gateway is configured to connect.
func (c *Config) OnlineCheckoutEnabled() bool {
	return c.CheckoutBaseURL != "" && c.CheckoutClientID != "" && c.CheckoutClientSecret != ""
}

func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
