package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Reservation configuration
	ReservationTTL       time.Duration
	MinTicketsPerOrder   int
	MaxTicketsPerOrder   int
	MaxPoolSize          int
	ReserveRetryAttempts int
	DefaultCurrency      string
	PaymentInstructions  string

	// Background jobs
	SweepInterval time.Duration
	DedupWindow   time.Duration

	// Webhook intake
	WebhookVerifyToken string
	WebhookAppSecret   string
	RateLimitPerMinute int

	// Operator API
	OperatorTokenHash string

	// PubNub notifications
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string
	OpsChannel         string

	// Bank transfer alert feed
	BankFeedEnabled      bool
	BankFeedSubscribeKey string
	BankFeedChannel      string
	BankFeedCipherKey    string
	BankFeedHMACKey      string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	// Local development reads a .env file when present.
	_ = godotenv.Load()

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Reservations
		ReservationTTL:       getEnvAsDuration("RESERVATION_TTL", "30m"),
		MinTicketsPerOrder:   getEnvAsInt("MIN_TICKETS_PER_ORDER", 1),
		MaxTicketsPerOrder:   getEnvAsInt("MAX_TICKETS_PER_ORDER", 50),
		MaxPoolSize:          getEnvAsInt("MAX_POOL_SIZE", 100000),
		ReserveRetryAttempts: getEnvAsInt("RESERVE_RETRY_ATTEMPTS", 4),
		DefaultCurrency:      getEnv("DEFAULT_CURRENCY", "LAK"),
		PaymentInstructions:  getEnv("PAYMENT_INSTRUCTIONS", "Transfer to BCEL account 010-12-00-123456789, name RAFFLE SHOP."),

		// Background jobs
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "1m"),
		DedupWindow:   getEnvAsDuration("DEDUP_WINDOW", "168h"),

		// Webhook
		WebhookVerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		WebhookAppSecret:   getEnv("WEBHOOK_APP_SECRET", ""),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Operator API
		OperatorTokenHash: getEnv("OPERATOR_TOKEN_HASH", ""),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "raffle-system"),
		OpsChannel:         getEnv("OPS_CHANNEL", "raffle-ops"),

		// Bank alert feed
		BankFeedEnabled:      getEnvAsBool("BANKFEED_ENABLED", false),
		BankFeedSubscribeKey: getEnv("BANKFEED_SUBSCRIBE_KEY", ""),
		BankFeedChannel:      getEnv("BANKFEED_CHANNEL", ""),
		BankFeedCipherKey:    getEnv("BANKFEED_CIPHER_KEY", ""),
		BankFeedHMACKey:      getEnv("BANKFEED_HMAC_KEY", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
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
