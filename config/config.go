package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the mint gateway service. It is
// constructed once at process start and handed to the engine constructors;
// handlers never read ambient process state.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string

	AdminToken string

	PinningBaseURL   string
	PinningAPIKey    string
	PinningAPISecret string

	SigningBaseURL   string
	SigningAPIKey    string
	SigningAPISecret string
	SigningReturnURL string

	LedgerRPCURL   string
	MarketplaceURL string

	ContentGatewayBase string
	RuleFetchTimeout   time.Duration

	PaymentDestination string
	FeeDropsPerItem    int64

	RewardCurrency   string
	RewardIssuer     string
	PayoutBatchLimit int
}

// FromEnv loads configuration from environment variables required by the
// service. DATABASE_URL selects Postgres; when it is empty the service falls
// back to the embedded SQLite database at MINTGATE_SQLITE_PATH.
func FromEnv() (*Config, error) {
	adminToken := strings.TrimSpace(os.Getenv("MINTGATE_ADMIN_TOKEN"))
	if adminToken == "" {
		return nil, fmt.Errorf("MINTGATE_ADMIN_TOKEN is required")
	}

	signingBase := getEnvDefault("MINTGATE_SIGNING_BASE_URL", "https://xumm.app/api/v1/platform")
	signingKey := strings.TrimSpace(os.Getenv("MINTGATE_SIGNING_API_KEY"))
	if signingKey == "" {
		return nil, fmt.Errorf("MINTGATE_SIGNING_API_KEY is required")
	}
	signingSecret := strings.TrimSpace(os.Getenv("MINTGATE_SIGNING_API_SECRET"))
	if signingSecret == "" {
		return nil, fmt.Errorf("MINTGATE_SIGNING_API_SECRET is required")
	}

	destination := strings.TrimSpace(os.Getenv("MINTGATE_PAYMENT_DESTINATION"))
	if destination == "" {
		return nil, fmt.Errorf("MINTGATE_PAYMENT_DESTINATION is required")
	}

	feeDrops := parseInt64Env("MINTGATE_FEE_DROPS_PER_ITEM", 1_000_000)
	if feeDrops <= 0 {
		return nil, fmt.Errorf("invalid MINTGATE_FEE_DROPS_PER_ITEM %d", feeDrops)
	}

	ruleTimeoutSeconds := parseIntEnv("MINTGATE_RULE_FETCH_TIMEOUT_SECONDS", 4)
	if ruleTimeoutSeconds <= 0 {
		ruleTimeoutSeconds = 4
	}

	batchLimit := parseIntEnv("MINTGATE_PAYOUT_BATCH_LIMIT", 50)
	if batchLimit <= 0 {
		batchLimit = 50
	}

	return &Config{
		Port:               normalizePort(getEnvDefault("MINTGATE_PORT", "4000")),
		Env:                strings.TrimSpace(os.Getenv("MINTGATE_ENV")),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:         getEnvDefault("MINTGATE_SQLITE_PATH", "mintgate.db"),
		AdminToken:         adminToken,
		PinningBaseURL:     getEnvDefault("MINTGATE_PINNING_BASE_URL", "https://api.pinata.cloud"),
		PinningAPIKey:      strings.TrimSpace(os.Getenv("MINTGATE_PINNING_API_KEY")),
		PinningAPISecret:   strings.TrimSpace(os.Getenv("MINTGATE_PINNING_API_SECRET")),
		SigningBaseURL:     signingBase,
		SigningAPIKey:      signingKey,
		SigningAPISecret:   signingSecret,
		SigningReturnURL:   strings.TrimSpace(os.Getenv("MINTGATE_SIGNING_RETURN_URL")),
		LedgerRPCURL:       strings.TrimSpace(os.Getenv("MINTGATE_LEDGER_RPC_URL")),
		MarketplaceURL:     strings.TrimSpace(os.Getenv("MINTGATE_MARKETPLACE_URL")),
		ContentGatewayBase: getEnvDefault("MINTGATE_CONTENT_GATEWAY", "https://gateway.pinata.cloud/ipfs"),
		RuleFetchTimeout:   time.Duration(ruleTimeoutSeconds) * time.Second,
		PaymentDestination: destination,
		FeeDropsPerItem:    feeDrops,
		RewardCurrency:     getEnvDefault("MINTGATE_REWARD_CURRENCY", "CFC"),
		RewardIssuer:       strings.TrimSpace(os.Getenv("MINTGATE_REWARD_ISSUER")),
		PayoutBatchLimit:   batchLimit,
	}, nil
}

func getEnvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func normalizePort(port string) string {
	if port == "" {
		return "4000"
	}
	if _, err := strconv.Atoi(port); err == nil {
		return port
	}
	// Allow values like ":4000".
	if port[0] == ':' {
		return port[1:]
	}
	return port
}

func parseIntEnv(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt64Env(key string, def int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}
