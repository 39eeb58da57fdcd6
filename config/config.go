/*
Package config loads runtime configuration from the environment.

PURPOSE:
  One place that knows every environment variable the service reads.
  A .env file is loaded first when present, so local development does
  not need exported variables.

VARIABLES:
  PORT                  HTTP listen port (default 8080)
  ENV                   development | production (default development)
  STORE_DRIVER          memory | sqlite | postgres (default memory)
  SQLITE_PATH           database file for the sqlite driver
  DATABASE_URL          DSN for the postgres driver
  PLATFORM_FEE_PERCENT  marketplace cut of each session price (default 20)
  CHECKOUT_SUCCESS_URL  redirect target after a paid checkout
  CHECKOUT_CANCEL_URL   redirect target after an abandoned checkout
*/
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port               string
	Environment        string
	StoreDriver        string
	SQLitePath         string
	DatabaseURL        string
	PlatformFeePercent decimal.Decimal
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

func Load() (*Config, error) {
	// Missing .env is fine, plain environment variables still apply.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:               envOr("PORT", "8080"),
		Environment:        envOr("ENV", "development"),
		StoreDriver:        envOr("STORE_DRIVER", DriverMemory),
		SQLitePath:         envOr("SQLITE_PATH", "mentorbook.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		CheckoutSuccessURL: envOr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
		CheckoutCancelURL:  envOr("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
	}

	fee, err := decimal.NewFromString(envOr("PLATFORM_FEE_PERCENT", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %w", err)
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %s", fee)
	}
	cfg.PlatformFeePercent = fee

	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required with STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
