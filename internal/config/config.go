// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/frontier/internal/modules/universe"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the price store and report files (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool // disables response compression

	PriceDBPath  string // sqlite store holding daily_prices
	PriceCSVPath string // optional wide CSV of closes, takes precedence over the DB when set

	Run       RunDefaults
	Optimizer OptimizerConfig
	S3        S3Config
	Schedule  ScheduleConfig
	Backup    BackupConfig
}

// BackupConfig enables scheduled snapshots of the price store. Both URL
// (s3://bucket/prefix) and Schedule must be set. Uploads reuse S3Config.
type BackupConfig struct {
	URL      string
	Schedule string
	Timeout  time.Duration
}

// ScheduleConfig holds cron expressions (seconds field first) for the
// server's background jobs. An empty expression disables the job.
type ScheduleConfig struct {
	Run           string // optimize Run defaults and store the report
	DatabaseCheck string // integrity check of the price store
	RunTimeout    time.Duration
}

// RunDefaults are the entry parameters used when the CLI or an HTTP request omits them.
type RunDefaults struct {
	Tickers    []string
	WindowSize int     // lookback window in trading days
	TotalValue float64 // cash budget for discrete allocation
	ResultFile string  // "-" for stdout, s3://bucket/key for uploads
}

// OptimizerConfig tunes estimation and solving.
type OptimizerConfig struct {
	RiskFreeRate       float64
	Frequency          int // periods per year
	Benchmark          float64
	ReturnsMethod      string // mean, compounded, log
	WeightCutoff       float64
	MaxWeight          float64 // per-asset upper bound
	ParallelObjectives bool
	SolverMaxIter      int
	SolverTimeout      time.Duration
}

// S3Config configures the s3:// report sink. Empty endpoint means AWS proper.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FRONTIER_DATA_DIR", "data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		LogLevel:     getEnv("FRONTIER_LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("FRONTIER_LOG_PRETTY", true),
		Port:         getEnvAsInt("FRONTIER_PORT", 8010),
		DevMode:      getEnvAsBool("FRONTIER_DEV_MODE", false),
		PriceDBPath:  getEnv("FRONTIER_PRICE_DB", filepath.Join(absDataDir, "history.db")),
		PriceCSVPath: getEnv("FRONTIER_PRICE_CSV", ""),
		Run: RunDefaults{
			Tickers:    universe.ParseTickers(getEnv("FRONTIER_TICKERS", "QLD,SSO,DDM,UBT")),
			WindowSize: getEnvAsInt("FRONTIER_WINDOW_SIZE", 365),
			TotalValue: getEnvAsFloat("FRONTIER_TOTAL_VALUE", 1000000),
			ResultFile: getEnv("FRONTIER_RESULT_FILE", "result.txt"),
		},
		Optimizer: OptimizerConfig{
			RiskFreeRate:       getEnvAsFloat("FRONTIER_RISK_FREE_RATE", 0.02),
			Frequency:          getEnvAsInt("FRONTIER_FREQUENCY", 252),
			Benchmark:          getEnvAsFloat("FRONTIER_BENCHMARK", 0),
			ReturnsMethod:      getEnv("FRONTIER_RETURNS_METHOD", "mean"),
			WeightCutoff:       getEnvAsFloat("FRONTIER_WEIGHT_CUTOFF", 1e-4),
			MaxWeight:          getEnvAsFloat("FRONTIER_MAX_WEIGHT", 1),
			ParallelObjectives: getEnvAsBool("FRONTIER_PARALLEL_OBJECTIVES", true),
			SolverMaxIter:      getEnvAsInt("FRONTIER_SOLVER_MAX_ITER", 200),
			SolverTimeout:      getEnvAsDuration("FRONTIER_SOLVER_TIMEOUT", 30*time.Second),
		},
		S3: S3Config{
			Endpoint:        getEnv("FRONTIER_S3_ENDPOINT", ""),
			Region:          getEnv("FRONTIER_S3_REGION", "auto"),
			AccessKeyID:     getEnv("FRONTIER_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("FRONTIER_S3_SECRET_ACCESS_KEY", ""),
		},
		Schedule: ScheduleConfig{
			Run:           getEnv("FRONTIER_RUN_SCHEDULE", ""),
			DatabaseCheck: getEnv("FRONTIER_DB_CHECK_SCHEDULE", "0 0 3 * * *"),
			RunTimeout:    getEnvAsDuration("FRONTIER_RUN_TIMEOUT", 5*time.Minute),
		},
		Backup: BackupConfig{
			URL:      getEnv("FRONTIER_BACKUP_URL", ""),
			Schedule: getEnv("FRONTIER_BACKUP_SCHEDULE", "0 30 2 * * *"),
			Timeout:  getEnvAsDuration("FRONTIER_BACKUP_TIMEOUT", 10*time.Minute),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Run.WindowSize < 2 {
		return fmt.Errorf("window size must be at least 2, got %d", c.Run.WindowSize)
	}
	if c.Run.TotalValue <= 0 {
		return fmt.Errorf("total portfolio value must be positive, got %v", c.Run.TotalValue)
	}
	if c.Optimizer.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %d", c.Optimizer.Frequency)
	}
	if c.Optimizer.WeightCutoff <= 0 || c.Optimizer.WeightCutoff >= 1 {
		return fmt.Errorf("weight cutoff must be in (0, 1), got %v", c.Optimizer.WeightCutoff)
	}
	if c.Optimizer.MaxWeight <= 0 || c.Optimizer.MaxWeight > 1 {
		return fmt.Errorf("max weight must be in (0, 1], got %v", c.Optimizer.MaxWeight)
	}
	switch c.Optimizer.ReturnsMethod {
	case "mean", "compounded", "log":
	default:
		return fmt.Errorf("unknown returns method %q", c.Optimizer.ReturnsMethod)
	}
	if c.Optimizer.SolverMaxIter <= 0 {
		return fmt.Errorf("solver max iterations must be positive, got %d", c.Optimizer.SolverMaxIter)
	}

	return nil
}

// EnsureDataDir creates the data directory if it does not exist yet.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
