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
	DataDir  string // Base directory for the monitoring databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Tickers monitored by the daily cycle
	Tickers []string

	// CycleSchedule is a cron expression (with seconds) for the monitoring cycle
	CycleSchedule string
	// CycleTimeout bounds a single monitoring cycle end to end
	CycleTimeout time.Duration

	// ValidationDaysBack selects how far back pending predictions are validated
	ValidationDaysBack int
	// MetricsWindowDays is the trailing window for error metrics
	MetricsWindowDays int
	// MinSamples is the minimum validated sample count for meaningful metrics
	MinSamples int

	Resolver    ResolverConfig
	Drift       DriftConfig
	Thresholds  ThresholdsConfig
	Backup      BackupConfig
	Maintenance MaintenanceConfig

	// WebhookURL is an optional alert notification endpoint (empty = disabled)
	WebhookURL string

	// TwelveDataAPIKey enables the secondary remote market data backend
	TwelveDataAPIKey string
}

// ResolverConfig controls multi-backend market data resolution
type ResolverConfig struct {
	// Priority is the backend order, highest priority first
	Priority []string
	// BackendTimeout bounds a single backend attempt
	BackendTimeout time.Duration
	// MaxAttempts is the per-backend retry budget (including the first try)
	MaxAttempts int
	// BackoffBase is the initial retry delay, doubled per attempt
	BackoffBase time.Duration
	// BackoffCap is the maximum retry delay
	BackoffCap time.Duration
}

// DriftConfig controls statistical drift detection
type DriftConfig struct {
	// Mode is "sliding" (compare recent window vs preceding window) or
	// "baseline" (compare against the persisted reference profile).
	// Sliding is the default: diffing today's prices against a multi-year-old
	// training baseline always shows drift and is not actionable.
	Mode string
	// CurrentWindow / ReferenceWindow are observation counts for sliding mode
	CurrentWindow   int
	ReferenceWindow int
	// MeanThresholdPct / StdThresholdPct trip the mean and spread tests
	MeanThresholdPct float64
	StdThresholdPct  float64
	// SignificanceLevel for the Kolmogorov-Smirnov test
	SignificanceLevel float64
	// KSEscalatesSeverity lets the distribution test alone raise severity to
	// high. Off by default: KS is the noisiest of the three signals.
	KSEscalatesSeverity bool
}

// ThresholdsConfig holds alerting thresholds
type ThresholdsConfig struct {
	MAE       float64 // price units
	MAPE      float64 // percent
	ErrorRate float64 // fraction of failed validations
	// DriftRatePct alerts when the share of drift-positive checks in the
	// trailing week exceeds this percentage
	DriftRatePct float64
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled
// when Bucket is empty.
type BackupConfig struct {
	Bucket   string
	Endpoint string // custom endpoint for R2/minio style storage
	Region   string
	// AccessKeyID / SecretAccessKey override the default credential chain
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string // cron expression (with seconds)
	RetentionDays   int
}

// MaintenanceConfig controls the nightly housekeeping job
type MaintenanceConfig struct {
	Schedule string // cron expression (with seconds)
	// CacheRetentionDays bounds how long fetched bars stay in cache.db
	CacheRetentionDays int
	// ArchiveAfterDays flags predictions issued longer ago than this
	ArchiveAfterDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ARGUS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mode := getEnv("ARGUS_DRIFT_MODE", "sliding")

	// Mode-dependent defaults: sliding windows tolerate more volatility noise
	// on spread but less on mean than a fixed training baseline does.
	defaultMeanPct := 5.0
	defaultStdPct := 50.0
	if mode == "baseline" {
		defaultMeanPct = 10.0
		defaultStdPct = 20.0
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("ARGUS_PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		Tickers: getEnvAsList("ARGUS_TICKERS", []string{"B3SA3.SA"}),

		CycleSchedule:      getEnv("ARGUS_CYCLE_SCHEDULE", "0 0 21 * * MON-FRI"),
		CycleTimeout:       getEnvAsDuration("ARGUS_CYCLE_TIMEOUT", 5*time.Minute),
		ValidationDaysBack: getEnvAsInt("ARGUS_VALIDATION_DAYS_BACK", 7),
		MetricsWindowDays:  getEnvAsInt("ARGUS_METRICS_WINDOW_DAYS", 7),
		MinSamples:         getEnvAsInt("ARGUS_MIN_SAMPLES", 3),

		Resolver: ResolverConfig{
			Priority:       getEnvAsList("ARGUS_BACKEND_PRIORITY", []string{"cache", "yahoo", "twelvedata", "snapshot"}),
			BackendTimeout: getEnvAsDuration("ARGUS_BACKEND_TIMEOUT", 10*time.Second),
			MaxAttempts:    getEnvAsInt("ARGUS_BACKEND_MAX_ATTEMPTS", 3),
			BackoffBase:    getEnvAsDuration("ARGUS_BACKOFF_BASE", 1*time.Second),
			BackoffCap:     getEnvAsDuration("ARGUS_BACKOFF_CAP", 8*time.Second),
		},

		Drift: DriftConfig{
			Mode:                mode,
			CurrentWindow:       getEnvAsInt("ARGUS_DRIFT_CURRENT_WINDOW", 7),
			ReferenceWindow:     getEnvAsInt("ARGUS_DRIFT_REFERENCE_WINDOW", 30),
			MeanThresholdPct:    getEnvAsFloat("ARGUS_DRIFT_MEAN_PCT", defaultMeanPct),
			StdThresholdPct:     getEnvAsFloat("ARGUS_DRIFT_STD_PCT", defaultStdPct),
			SignificanceLevel:   getEnvAsFloat("ARGUS_DRIFT_SIGNIFICANCE", 0.05),
			KSEscalatesSeverity: getEnvAsBool("ARGUS_DRIFT_KS_ESCALATES", false),
		},

		Thresholds: ThresholdsConfig{
			MAE:          getEnvAsFloat("ARGUS_MAE_THRESHOLD", 2.0),
			MAPE:         getEnvAsFloat("ARGUS_MAPE_THRESHOLD", 5.0),
			ErrorRate:    getEnvAsFloat("ARGUS_ERROR_RATE_THRESHOLD", 0.05),
			DriftRatePct: getEnvAsFloat("ARGUS_DRIFT_RATE_ALERT_PCT", 50.0),
		},

		Backup: BackupConfig{
			Bucket:          getEnv("ARGUS_BACKUP_BUCKET", ""),
			Endpoint:        getEnv("ARGUS_BACKUP_ENDPOINT", ""),
			Region:          getEnv("ARGUS_BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("ARGUS_BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARGUS_BACKUP_SECRET_KEY", ""),
			Schedule:        getEnv("ARGUS_BACKUP_SCHEDULE", "0 0 3 * * SUN"),
			RetentionDays:   getEnvAsInt("ARGUS_BACKUP_RETENTION_DAYS", 30),
		},

		Maintenance: MaintenanceConfig{
			Schedule:           getEnv("ARGUS_MAINTENANCE_SCHEDULE", "0 30 3 * * *"),
			CacheRetentionDays: getEnvAsInt("ARGUS_CACHE_RETENTION_DAYS", 30),
			ArchiveAfterDays:   getEnvAsInt("ARGUS_ARCHIVE_AFTER_DAYS", 365),
		},

		WebhookURL:       getEnv("ARGUS_ALERT_WEBHOOK_URL", ""),
		TwelveDataAPIKey: getEnv("TWELVEDATA_API_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and coherent
func (c *Config) Validate() error {
	if len(c.Tickers) == 0 {
		return fmt.Errorf("at least one ticker must be configured (ARGUS_TICKERS)")
	}
	if c.Drift.Mode != "sliding" && c.Drift.Mode != "baseline" {
		return fmt.Errorf("invalid drift mode %q (expected sliding or baseline)", c.Drift.Mode)
	}
	if c.Drift.CurrentWindow <= 1 || c.Drift.ReferenceWindow <= 1 {
		return fmt.Errorf("drift windows must be greater than 1")
	}
	if len(c.Resolver.Priority) == 0 {
		return fmt.Errorf("at least one market data backend must be configured (ARGUS_BACKEND_PRIORITY)")
	}
	if c.Resolver.MaxAttempts < 1 {
		return fmt.Errorf("backend max attempts must be at least 1")
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
