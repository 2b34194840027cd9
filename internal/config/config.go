// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Supported backends
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ArtifactBackendSQLite = "sqlite"
	ArtifactBackendS3     = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the SQLite databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	DatabaseDriver string // sqlite | postgres (ledger only; models always live in SQLite or S3)
	DatabaseDSN    string

	ArtifactBackend string // sqlite | s3
	S3              S3Config

	Pipeline PipelineConfig

	RetrainSchedule string // cron spec, empty disables scheduled retraining
	BatchWorkers    int

	BackupSchedule      string // cron spec, empty disables bucket backups
	BackupRetentionDays int    // 0 keeps every backup

	GenAI GenAIConfig
}

// S3Config holds the remote artifact store settings
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// PipelineConfig holds labeling, split and explanation settings
type PipelineConfig struct {
	BalanceThreshold   decimal.Decimal
	StressDaysRequired int
	LookaheadEntries   int
	SplitDate          time.Time
	MaxIter            int
	TopKDrivers        int
}

// GenAIConfig holds the LLM explanation settings
type GenAIConfig struct {
	Enabled bool
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISK_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() (*Config, error) {
	threshold, err := getEnvAsDecimal("BALANCE_THRESHOLD", decimal.NewFromInt(-5000))
	if err != nil {
		return nil, err
	}
	splitDate, err := getEnvAsDate("SPLIT_DATE", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}

	return &Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnvAsInt("GO_PORT", 8001),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		DatabaseDriver:  strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseDSN:     getEnv("DATABASE_DSN", ""),
		ArtifactBackend: strings.ToLower(getEnv("ARTIFACT_BACKEND", ArtifactBackendSQLite)),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Prefix:          getEnv("S3_PREFIX", "cashflow-risk"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
		Pipeline: PipelineConfig{
			BalanceThreshold:   threshold,
			StressDaysRequired: getEnvAsInt("STRESS_DAYS_REQUIRED", 7),
			LookaheadEntries:   getEnvAsInt("LOOKAHEAD_ENTRIES", 30),
			SplitDate:          splitDate,
			MaxIter:            getEnvAsInt("MAX_ITER", 1000),
			TopKDrivers:        getEnvAsInt("TOP_K_DRIVERS", 5),
		},
		RetrainSchedule: getEnv("RETRAIN_SCHEDULE", ""),
		BatchWorkers:    getEnvAsInt("BATCH_WORKERS", 4),

		BackupSchedule:      getEnv("BACKUP_SCHEDULE", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		GenAI: GenAIConfig{
			Enabled: getEnvAsBool("GENAI_ENABLED", false),
			Model:   getEnv("GENAI_MODEL", "gemini-2.5-flash"),
			APIKey:  getEnv("GENAI_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("GENAI_TIMEOUT_SECONDS", 10)) * time.Second,
		},
	}, nil
}

// Validate checks option values and backend names
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return &domain.ConfigurationError{Option: "DATABASE_DSN", Reason: "required when DATABASE_DRIVER=postgres"}
		}
	default:
		return &domain.ConfigurationError{Option: "DATABASE_DRIVER", Reason: fmt.Sprintf("unknown driver %q", c.DatabaseDriver)}
	}

	switch c.ArtifactBackend {
	case ArtifactBackendSQLite:
	case ArtifactBackendS3:
		if c.S3.Bucket == "" {
			return &domain.ConfigurationError{Option: "S3_BUCKET", Reason: "required when ARTIFACT_BACKEND=s3"}
		}
	default:
		return &domain.ConfigurationError{Option: "ARTIFACT_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.ArtifactBackend)}
	}

	positive := []struct {
		option string
		value  int
	}{
		{"GO_PORT", c.Port},
		{"STRESS_DAYS_REQUIRED", c.Pipeline.StressDaysRequired},
		{"LOOKAHEAD_ENTRIES", c.Pipeline.LookaheadEntries},
		{"MAX_ITER", c.Pipeline.MaxIter},
		{"TOP_K_DRIVERS", c.Pipeline.TopKDrivers},
		{"BATCH_WORKERS", c.BatchWorkers},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &domain.ConfigurationError{Option: p.option, Reason: fmt.Sprintf("must be positive, got %d", p.value)}
		}
	}

	if c.RetrainSchedule != "" {
		if _, err := cron.ParseStandard(c.RetrainSchedule); err != nil {
			return &domain.ConfigurationError{Option: "RETRAIN_SCHEDULE", Reason: err.Error()}
		}
	}

	if c.BackupSchedule != "" {
		if _, err := cron.ParseStandard(c.BackupSchedule); err != nil {
			return &domain.ConfigurationError{Option: "BACKUP_SCHEDULE", Reason: err.Error()}
		}
		if c.S3.Bucket == "" {
			return &domain.ConfigurationError{Option: "S3_BUCKET", Reason: "required when BACKUP_SCHEDULE is set"}
		}
	}
	if c.BackupRetentionDays < 0 {
		return &domain.ConfigurationError{Option: "BACKUP_RETENTION_DAYS", Reason: fmt.Sprintf("must not be negative, got %d", c.BackupRetentionDays)}
	}
	return nil
}

// LedgerPath is the SQLite ledger file
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// ModelsPath is the SQLite file holding artifacts and training runs
func (c *Config) ModelsPath() string {
	return filepath.Join(c.DataDir, "models.db")
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

// getEnvAsDecimal fails loudly since a mistyped threshold silently changes every label
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, &domain.ConfigurationError{Option: key, Reason: fmt.Sprintf("invalid decimal %q", value)}
	}
	return d, nil
}

func getEnvAsDate(key string, defaultValue time.Time) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &domain.ConfigurationError{Option: key, Reason: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value)}
	}
	return t.UTC(), nil
}
