// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool
	Version  string // Reported by /health
	Risk     RiskConfig
	Ingest   IngestConfig
	// PriceFeedURL is the WebSocket endpoint streaming daily closes.
	// Empty disables the feed.
	PriceFeedURL string
}

// RiskConfig tunes the Monte Carlo engine
type RiskConfig struct {
	Trials             int
	HistoryCap         int
	FallbackVolatility float64
	LockTimeout        time.Duration // How long a request waits for the engine
}

// IngestConfig configures loading returns from the price history database
type IngestConfig struct {
	HistoryDBPath string // Empty disables ingestion
	Assets        []string
	Schedule      string // robfig/cron spec
}

// Enabled reports whether a history database is configured
func (c IngestConfig) Enabled() bool {
	return c.HistoryDBPath != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnvAsInt("PORT", 8002),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Version:  getEnv("VERSION", "dev"),
		Risk: RiskConfig{
			Trials:             getEnvAsInt("RISK_TRIALS", 10_000),
			HistoryCap:         getEnvAsInt("RISK_HISTORY_CAP", 252),
			FallbackVolatility: getEnvAsFloat("RISK_FALLBACK_VOLATILITY", 0.02),
			LockTimeout:        getEnvAsDuration("RISK_LOCK_TIMEOUT", 5*time.Second),
		},
		Ingest: IngestConfig{
			HistoryDBPath: getEnv("HISTORY_DB_PATH", ""),
			Assets:        getEnvAsList("INGEST_ASSETS"),
			Schedule:      getEnv("INGEST_SCHEDULE", "@every 1h"),
		},
		PriceFeedURL: getEnv("PRICE_FEED_URL", ""),
	}

	// Always resolve the history database to an absolute path
	if cfg.Ingest.HistoryDBPath != "" {
		abs, err := filepath.Abs(cfg.Ingest.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve history database path: %w", err)
		}
		cfg.Ingest.HistoryDBPath = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that tuning values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Risk.Trials <= 0 {
		return fmt.Errorf("RISK_TRIALS must be positive, got %d", c.Risk.Trials)
	}
	if c.Risk.HistoryCap < 2 {
		return fmt.Errorf("RISK_HISTORY_CAP must be at least 2, got %d", c.Risk.HistoryCap)
	}
	if c.Risk.FallbackVolatility <= 0 || c.Risk.FallbackVolatility >= 1 {
		return fmt.Errorf("RISK_FALLBACK_VOLATILITY must be in (0,1), got %v", c.Risk.FallbackVolatility)
	}
	if c.Risk.LockTimeout <= 0 {
		return fmt.Errorf("RISK_LOCK_TIMEOUT must be positive, got %s", c.Risk.LockTimeout)
	}
	if c.Ingest.Enabled() && len(c.Ingest.Assets) == 0 {
		return fmt.Errorf("INGEST_ASSETS is required when HISTORY_DB_PATH is set")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
