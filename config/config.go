package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional; mark prices are public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Simulation Parameters
	InitialBalance  decimal.Decimal // account funding in USD
	MarginSeedRatio decimal.Decimal // share of the balance seeded as margin
	Symbols         []string        // symbols swept every cycle

	// Sweep Parameters
	SweepInterval        time.Duration
	LiquidationThreshold decimal.Decimal // e.g. -80
	MarginCallThreshold  decimal.Decimal // e.g. -50
	CriticalThreshold    decimal.Decimal // e.g. -70

	// Database
	DBPath string

	// Logging
	LogLevel string
}

// SeedBalance is the margin balance a fresh account starts with.
func (c *Config) SeedBalance() decimal.Decimal {
	return c.InitialBalance.Mul(c.MarginSeedRatio)
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.InitialBalance, err = getEnvAsDecimal("INITIAL_BALANCE", "1000000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if !cfg.InitialBalance.IsPositive() {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.MarginSeedRatio, err = getEnvAsDecimal("MARGIN_SEED_RATIO", "0.1")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARGIN_SEED_RATIO: %v", err))
	} else if !cfg.MarginSeedRatio.IsPositive() || cfg.MarginSeedRatio.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "MARGIN_SEED_RATIO must be in (0, 1]")
	}

	symbolsStr := getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")
	for _, s := range strings.Split(symbolsStr, ",") {
		if s = strings.TrimSpace(s); s != "" {
			cfg.Symbols = append(cfg.Symbols, s)
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	sweepSeconds := getEnvAsInt("SWEEP_INTERVAL_SECONDS", 3)
	if sweepSeconds <= 0 {
		errs = append(errs, "SWEEP_INTERVAL_SECONDS must be positive")
	}
	cfg.SweepInterval = time.Duration(sweepSeconds) * time.Second

	cfg.LiquidationThreshold, err = getEnvAsDecimal("LIQUIDATION_THRESHOLD", "-80")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIQUIDATION_THRESHOLD: %v", err))
	} else if !cfg.LiquidationThreshold.IsNegative() {
		errs = append(errs, "LIQUIDATION_THRESHOLD must be negative")
	}

	cfg.MarginCallThreshold, err = getEnvAsDecimal("MARGIN_CALL_THRESHOLD", "-50")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARGIN_CALL_THRESHOLD: %v", err))
	} else if !cfg.MarginCallThreshold.IsNegative() {
		errs = append(errs, "MARGIN_CALL_THRESHOLD must be negative")
	}

	cfg.CriticalThreshold, err = getEnvAsDecimal("CRITICAL_THRESHOLD", "-70")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CRITICAL_THRESHOLD: %v", err))
	} else if !cfg.CriticalThreshold.IsNegative() {
		errs = append(errs, "CRITICAL_THRESHOLD must be negative")
	}

	// Liquidation must be the deepest tier.
	if cfg.LiquidationThreshold.GreaterThanOrEqual(cfg.MarginCallThreshold) {
		errs = append(errs, "LIQUIDATION_THRESHOLD must be below MARGIN_CALL_THRESHOLD")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/margin_sim.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
