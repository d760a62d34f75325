// Package config loads the engine's configuration from the environment,
// with an optional .env file for local development.
//
// The withdrawal optimizer's congestion threshold and the tax inclusion
// rate are configuration, not constants buried in logic: both are policy
// values that change independently of the code.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration.
type Config struct {
	Port        string
	DatabaseURL string // empty -> in-memory store
	RedisURL    string // empty -> no cache layer

	PriceAPIBaseURL  string
	FeeAPIBaseURL    string
	WalletAPIBaseURL string
	WalletAddress    string // optional watched on-chain address

	Currencies      []string // quote currencies to fetch, first is the default
	SnapshotTTL     time.Duration
	InclusionRate   decimal.Decimal
	CongestionVB    int64 // mempool vbytes above which ETAs are downgraded
	DefaultTxVBytes int64 // assumed withdrawal tx size when caller omits one
}

// Load reads configuration from the environment. A missing .env file is
// fine; invalid values for fields that have no safe default are fatal.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info(".env file loaded")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		PriceAPIBaseURL:  getEnv("PRICE_API_BASE_URL", "https://api.coingecko.com/api/v3"),
		FeeAPIBaseURL:    getEnv("FEE_API_BASE_URL", "https://mempool.space/api"),
		WalletAPIBaseURL: getEnv("WALLET_API_BASE_URL", "https://blockstream.info/api"),
		WalletAddress:    os.Getenv("WALLET_ADDRESS"),
	}

	for _, c := range strings.Split(getEnv("QUOTE_CURRENCIES", "CAD,USD"), ",") {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			cfg.Currencies = append(cfg.Currencies, c)
		}
	}
	if len(cfg.Currencies) == 0 {
		return nil, fmt.Errorf("config: QUOTE_CURRENCIES must name at least one currency")
	}

	ttl, err := time.ParseDuration(getEnv("SNAPSHOT_TTL", "5m"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("config: invalid SNAPSHOT_TTL: %v", err)
	}
	cfg.SnapshotTTL = ttl

	rate, err := decimal.NewFromString(getEnv("TAX_INCLUSION_RATE", "0.5"))
	if err != nil || !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("config: TAX_INCLUSION_RATE must be a decimal in (0, 1]")
	}
	cfg.InclusionRate = rate

	cfg.CongestionVB, err = parseInt64(getEnv("CONGESTION_THRESHOLD_VBYTES", "80000000"))
	if err != nil || cfg.CongestionVB <= 0 {
		return nil, fmt.Errorf("config: invalid CONGESTION_THRESHOLD_VBYTES")
	}

	cfg.DefaultTxVBytes, err = parseInt64(getEnv("DEFAULT_TX_VBYTES", "140"))
	if err != nil || cfg.DefaultTxVBytes <= 0 {
		return nil, fmt.Errorf("config: invalid DEFAULT_TX_VBYTES")
	}

	return cfg, nil
}

// DefaultCurrency returns the first configured quote currency.
func (c *Config) DefaultCurrency() string {
	return c.Currencies[0]
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
