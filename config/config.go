package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// HTTP configuration
	HTTPAddr       string
	AllowedOrigins []string

	// Token ledger configuration
	StartingBalance decimal.Decimal // tokens granted to a new account
	MaxDebt         decimal.Decimal // how far below zero spendable balance may go

	// Listing sweep configuration
	SweepInterval time.Duration

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// HTTP settings with defaults
		HTTPAddr:       ":8080",
		AllowedOrigins: []string{"*"},

		// Ledger settings with defaults
		StartingBalance: decimal.NewFromInt(2),
		MaxDebt:         decimal.NewFromInt(2),

		// Sweep settings with defaults
		SweepInterval: 10 * time.Minute,

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		config.HTTPAddr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, origin)
			}
		}
	}
	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		parsed, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("invalid STARTING_BALANCE %q: %w", balance, err)
		}
		config.StartingBalance = parsed
	}
	if debt := os.Getenv("MAX_DEBT"); debt != "" {
		parsed, err := decimal.NewFromString(debt)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_DEBT %q: %w", debt, err)
		}
		if parsed.IsNegative() {
			return nil, fmt.Errorf("MAX_DEBT must not be negative, got %s", parsed)
		}
		config.MaxDebt = parsed
	}
	if interval := os.Getenv("SWEEP_INTERVAL_MINUTES"); interval != "" {
		parsed, err := strconv.Atoi(interval)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES %q", interval)
		}
		config.SweepInterval = time.Duration(parsed) * time.Minute
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}
