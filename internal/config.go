package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	Port     uint16

	// IDOffset is the base of the synthetic ML invoice id range. Ids at or
	// above it are reserved for locally derived identities; real invoice
	// rows must stay below it.
	IDOffset int64

	Finance FinanceConfig
	KV      KVConfig
	Refresh RefreshConfig
}

// FinanceConfig points at the upstream finance/claims API.
type FinanceConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
}

// KVConfig selects and configures the payment/registry store backend.
type KVConfig struct {
	Provider      string // "local", "sqlite" or "redis"
	LocalPath     string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// RefreshConfig tunes the background invoice refresh loop.
type RefreshConfig struct {
	Interval    time.Duration
	Concurrency int
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:      getEnv("ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvInt("PORT", 3000),
		IDOffset: getEnvInt64("ML_INVOICE_ID_OFFSET", 100000),
		Finance: FinanceConfig{
			BaseURL: getEnv("FINANCE_BASE_URL", "http://localhost:8000/api"),
			Token:   getEnv("FINANCE_API_TOKEN", ""),
			Timeout: getEnvDuration("FINANCE_TIMEOUT", 10*time.Second),
			Retries: int(getEnvInt("FINANCE_RETRIES", 2)),
		},
		KV: KVConfig{
			Provider:      getEnv("KV_PROVIDER", "local"),
			LocalPath:     getEnv("KV_LOCAL_PATH", "./data"),
			SQLitePath:    getEnv("KV_SQLITE_PATH", "./data/claimspay.db"),
			RedisAddr:     getEnv("KV_REDIS_ADDR", ""),
			RedisPassword: getEnv("KV_REDIS_PASSWORD", ""),
			RedisDB:       int(getEnvInt("KV_REDIS_DB", 0)),
		},
		Refresh: RefreshConfig{
			Interval:    getEnvDuration("REFRESH_INTERVAL", 30*time.Second),
			Concurrency: int(getEnvInt("REFRESH_CONCURRENCY", 4)),
		},
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.IDOffset <= 0 {
		return nil, fmt.Errorf("ML_INVOICE_ID_OFFSET must be positive, got %d", cfg.IDOffset)
	}

	if cfg.KV.Provider == "redis" && cfg.KV.RedisAddr == "" {
		return nil, fmt.Errorf("KV_REDIS_ADDR required when using redis store")
	}

	if cfg.Env == "prod" && cfg.Finance.Token == "" {
		return nil, fmt.Errorf("FINANCE_API_TOKEN must be set in production environment")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		var intValue uint16
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		var intValue int64
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
