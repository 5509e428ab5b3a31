// Package config loads application settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL string
	// SQLitePath is the development store used when DatabaseURL is empty.
	SQLitePath string

	YahooURL            string
	YahooRetryMax       int
	YahooRetryBaseDelay time.Duration
	YahooRateLimit      float64

	PivotCurrency     string
	PriceEpochWindow  time.Duration
	PriceCacheEntries int
	SplitCacheEntries int
	TickerCacheTTL    time.Duration

	PassphraseSalt string

	HTTPPort    string
	AdminAPIKey string

	SnapshotUserKeys       []string
	SnapshotWorkerInterval time.Duration

	GoogleSheetsID        string
	GoogleCredentialsJSON string

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
// Variables from ./.env are applied first without overriding the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	return Config{
		DatabaseURL:            envOrDefault("DATABASE_URL", ""),
		SQLitePath:             envOrDefault("SQLITE_PATH", "investdash.db"),
		YahooURL:               envOrDefault("YAHOO_URL", "https://query1.finance.yahoo.com"),
		YahooRetryMax:          envOrDefaultInt("YAHOO_RETRY_MAX", 5),
		YahooRetryBaseDelay:    envOrDefaultDuration("YAHOO_RETRY_BASE_DELAY", 2*time.Second),
		YahooRateLimit:         envOrDefaultFloat("YAHOO_RATE_LIMIT", 2),
		PivotCurrency:          strings.ToUpper(envOrDefault("PIVOT_CURRENCY", "PLN")),
		PriceEpochWindow:       envOrDefaultDuration("PRICE_EPOCH_WINDOW", 5*time.Minute),
		PriceCacheEntries:      envOrDefaultInt("PRICE_CACHE_ENTRIES", 1024),
		SplitCacheEntries:      envOrDefaultInt("SPLIT_CACHE_ENTRIES", 512),
		TickerCacheTTL:         envOrDefaultDuration("TICKER_CACHE_TTL", time.Hour),
		PassphraseSalt:         envOrDefaultWarn("PASSPHRASE_SALT", ""),
		HTTPPort:               envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:            envOrDefault("ADMIN_API_KEY", ""),
		SnapshotUserKeys:       envList("SNAPSHOT_USER_KEYS"),
		SnapshotWorkerInterval: envOrDefaultDuration("SNAPSHOT_WORKER_INTERVAL", 24*time.Hour),
		GoogleSheetsID:         envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentialsJSON:  envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		LogLevel:               envLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid number env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return level
}
