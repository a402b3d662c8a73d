// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the SQLite databases, always absolute
	LogLevel string
	Port     int
	DevMode  bool

	PriceData PriceDataConfig
	Optimizer OptimizerConfig

	DatasetTTL      time.Duration
	CacheTTL        time.Duration
	CleanupSchedule string // cron spec with seconds
}

// PriceDataConfig locates the stocks/etfs/bonds price files.
// A bucket takes precedence over a directory; neither serves submitted datasets only.
type PriceDataConfig struct {
	Dir               string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// OptimizerConfig tunes the solver and the models.
type OptimizerConfig struct {
	SolverMaxNodes     int
	SolverTolerance    float64
	MADOneSided        bool
	Grouping           string // "month_of_year" or "year_month"
	PeriodsPerYear     float64
	FlatFeePerUnit     float64
	FrontierGridPoints int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		PriceData: PriceDataConfig{
			Dir:               getEnv("PRICE_DATA_DIR", ""),
			S3Bucket:          getEnv("PRICE_DATA_S3_BUCKET", ""),
			S3Prefix:          getEnv("PRICE_DATA_S3_PREFIX", ""),
			S3Endpoint:        getEnv("S3_ENDPOINT", ""),
			S3Region:          getEnv("S3_REGION", "us-east-1"),
			S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
		Optimizer: OptimizerConfig{
			SolverMaxNodes:     getEnvAsInt("SOLVER_MAX_NODES", 20000),
			SolverTolerance:    getEnvAsFloat("SOLVER_TOLERANCE", 1e-9),
			MADOneSided:        getEnvAsBool("MAD_ONE_SIDED", false),
			Grouping:           getEnv("MAD_GROUPING", "month_of_year"),
			PeriodsPerYear:     getEnvAsFloat("PERIODS_PER_YEAR", 365),
			FlatFeePerUnit:     getEnvAsFloat("FLAT_FEE_PER_UNIT", 7),
			FrontierGridPoints: getEnvAsInt("FRONTIER_GRID_POINTS", 100),
		},
		DatasetTTL:      time.Duration(getEnvAsInt("DATASET_TTL_HOURS", 24*7)) * time.Hour,
		CacheTTL:        time.Duration(getEnvAsInt("CACHE_TTL_HOURS", 24)) * time.Hour,
		CleanupSchedule: getEnv("CLEANUP_SCHEDULE", "0 0 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.PriceData.S3AccessKeyID != "" && c.PriceData.S3SecretAccessKey == "" {
		return fmt.Errorf("S3_SECRET_ACCESS_KEY is required with S3_ACCESS_KEY_ID")
	}
	if c.Optimizer.SolverMaxNodes <= 0 {
		return fmt.Errorf("SOLVER_MAX_NODES must be positive")
	}
	if c.Optimizer.SolverTolerance <= 0 || c.Optimizer.SolverTolerance >= 1e-3 {
		return fmt.Errorf("SOLVER_TOLERANCE must be in (0, 1e-3)")
	}
	if c.Optimizer.PeriodsPerYear <= 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must be positive")
	}
	if c.Optimizer.FlatFeePerUnit < 0 {
		return fmt.Errorf("FLAT_FEE_PER_UNIT must not be negative")
	}
	if c.DatasetTTL <= 0 || c.CacheTTL <= 0 {
		return fmt.Errorf("DATASET_TTL_HOURS and CACHE_TTL_HOURS must be positive")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
