// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/hybrid-trader/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds process configuration read from the environment
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Market data service
	MarketDataURL    string
	MarketDataAPIKey string
	MarketDataRPS    float64

	// ScheduleSpec is the cron spec (with seconds) for the scheduled live run
	ScheduleSpec string

	// Result export to S3-compatible storage; disabled when ExportBucket is empty
	ExportBucket    string
	ExportEndpoint  string
	ExportRegion    string
	ExportAccessKey string
	ExportSecretKey string

	// Paper account
	StartingCapital float64
	CommissionRate  float64

	// Run holds the defaults applied to every run request
	Run RunConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HYBRID_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	run := DefaultRunConfig()
	run.Instruments = getEnvAsList("HYBRID_INSTRUMENTS", run.Instruments)
	run.Blacklist = getEnvAsList("HYBRID_BLACKLIST", run.Blacklist)
	run.PositionFraction = getEnvAsFloat("HYBRID_POSITION_FRACTION", run.PositionFraction)
	run.MaxInvestmentPartition = getEnvAsFloat("HYBRID_MAX_INVESTMENT_PARTITION", run.MaxInvestmentPartition)
	run.WorkerLimit = getEnvAsInt("HYBRID_WORKER_LIMIT", run.WorkerLimit)
	run.RetryCount = getEnvAsInt("HYBRID_RETRY_COUNT", run.RetryCount)
	run.RetryTimeout = Duration(getEnvAsDuration("HYBRID_RETRY_TIMEOUT", time.Duration(run.RetryTimeout)))
	run.StartingCapital = getEnvAsFloat("HYBRID_STARTING_CAPITAL", run.StartingCapital)
	run.CommissionRate = getEnvAsFloat("HYBRID_COMMISSION_RATE", run.CommissionRate)
	run.Benchmark = getEnv("HYBRID_BENCHMARK", run.Benchmark)

	cfg := &Config{
		DataDir:          absDataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("HYBRID_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		MarketDataURL:    getEnv("MARKET_DATA_URL", "http://localhost:9000"),
		MarketDataAPIKey: getEnv("MARKET_DATA_API_KEY", ""),
		MarketDataRPS:    getEnvAsFloat("MARKET_DATA_RPS", 5),
		ScheduleSpec:     getEnv("HYBRID_SCHEDULE", "0 35 9 * * MON-FRI"),
		ExportBucket:     getEnv("EXPORT_BUCKET", ""),
		ExportEndpoint:   getEnv("EXPORT_ENDPOINT", ""),
		ExportRegion:     getEnv("EXPORT_REGION", "auto"),
		ExportAccessKey:  getEnv("EXPORT_ACCESS_KEY", ""),
		ExportSecretKey:  getEnv("EXPORT_SECRET_KEY", ""),
		StartingCapital:  run.StartingCapital,
		CommissionRate:   run.CommissionRate,
		Run:              run,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MarketDataURL == "" {
		return fmt.Errorf("MARKET_DATA_URL is required")
	}
	if c.StartingCapital <= 0 {
		return fmt.Errorf("starting capital must be positive, got %v", c.StartingCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %v", c.CommissionRate)
	}
	if c.ExportBucket != "" && (c.ExportAccessKey == "" || c.ExportSecretKey == "") {
		return fmt.Errorf("EXPORT_ACCESS_KEY and EXPORT_SECRET_KEY are required when EXPORT_BUCKET is set")
	}
	return nil
}

// ExportEnabled reports whether result export is configured
func (c *Config) ExportEnabled() bool {
	return c.ExportBucket != ""
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

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return utils.ParseCSV(value)
	}
	return defaultValue
}
