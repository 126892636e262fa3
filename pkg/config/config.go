// Package config collects the environment variables the service reads.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings. Values are loaded from environment
// variables; main loads a .env file first for local runs.
type Config struct {
	// Hedera operator identity and network selection.
	HederaNetwork    string
	HederaAccountID  string
	HederaPrivateKey string
	HederaMirrorURL  string

	// DynamoDB table names.
	EventsTableName   string
	PaymentsTableName string

	// SQS queue for stranded issuance reconciliation. Empty disables
	// enqueueing.
	ReconcileQueueURL string

	// Redis for rate limiting. Empty disables limiting.
	RedisURL         string
	RateLimitPerMin  int
	RateLimitWindow  time.Duration

	HTTPPort string
}

// Mirror node base URLs per network, used when HEDERA_MIRROR_URL is unset.
var defaultMirrorURLs = map[string]string{
	"testnet":    "https://testnet.mirrornode.hedera.com",
	"mainnet":    "https://mainnet-public.mirrornode.hedera.com",
	"previewnet": "https://previewnet.mirrornode.hedera.com",
}

// Load reads the configuration from the environment. Missing required
// values produce an error rather than a partial config.
func Load() (*Config, error) {
	cfg := &Config{
		HederaNetwork:     getenv("HEDERA_NETWORK", "testnet"),
		HederaAccountID:   os.Getenv("HEDERA_ACCOUNT_ID"),
		HederaPrivateKey:  os.Getenv("HEDERA_PRIVATE_KEY"),
		HederaMirrorURL:   os.Getenv("HEDERA_MIRROR_URL"),
		EventsTableName:   os.Getenv("DYNAMODB_EVENTS_TABLE_NAME"),
		PaymentsTableName: os.Getenv("DYNAMODB_PAYMENTS_TABLE_NAME"),
		ReconcileQueueURL: os.Getenv("SQS_RECONCILE_QUEUE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		RateLimitWindow:   time.Minute,
		HTTPPort:          getenv("HTTP_PORT", "8080"),
	}

	if cfg.HederaAccountID == "" || cfg.HederaPrivateKey == "" {
		return nil, fmt.Errorf("HEDERA_ACCOUNT_ID and HEDERA_PRIVATE_KEY must be set")
	}
	if cfg.EventsTableName == "" || cfg.PaymentsTableName == "" {
		return nil, fmt.Errorf("DYNAMODB_EVENTS_TABLE_NAME and DYNAMODB_PAYMENTS_TABLE_NAME must be set")
	}

	if cfg.HederaMirrorURL == "" {
		url, ok := defaultMirrorURLs[cfg.HederaNetwork]
		if !ok {
			return nil, fmt.Errorf("unknown HEDERA_NETWORK %q and no HEDERA_MIRROR_URL set", cfg.HederaNetwork)
		}
		cfg.HederaMirrorURL = url
	}

	cfg.RateLimitPerMin = 60
	if raw := os.Getenv("RATE_LIMIT_PER_MINUTE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE %q: %w", raw, err)
		}
		cfg.RateLimitPerMin = n
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
