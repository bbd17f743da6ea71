package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GATEKEEPER_"

// Environment variables read without the prefix.
const (
	EnvTrustProxy      = "TRUST_PROXY"
	EnvDailyTokenLimit = "AI_DAILY_TOKEN_LIMIT"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Fields missing from the file keep their defaults. The result is validated.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides, which take precedence over the file.
// An empty path starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file (or defaults)
// 2. Apply TRUST_PROXY and AI_DAILY_TOKEN_LIMIT
// 3. Apply GATEKEEPER_* overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments it loads ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %q: %w", path, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Unparsable values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Unprefixed variables
	envBool(EnvTrustProxy, &cfg.Limits.TrustProxy)
	envInt64(EnvDailyTokenLimit, &cfg.Limits.DailyTokenLimit)

	// Server overrides
	envString(EnvPrefix+"SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration(EnvPrefix+"SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration(EnvPrefix+"SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration(EnvPrefix+"SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration(EnvPrefix+"SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envInt(EnvPrefix+"SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	envBool(EnvPrefix+"SERVER_THROTTLE_API", &cfg.Server.ThrottleAPI)

	// Limits overrides
	envInt64(EnvPrefix+"LIMITS_DAILY_TOKEN_LIMIT", &cfg.Limits.DailyTokenLimit)
	envFloat(EnvPrefix+"LIMITS_BUDGET_ALERT_THRESHOLD", &cfg.Limits.BudgetAlertThreshold)
	envBool(EnvPrefix+"LIMITS_TRUST_PROXY", &cfg.Limits.TrustProxy)
	envDuration(EnvPrefix+"LIMITS_RESERVATION_TIMEOUT", &cfg.Limits.ReservationTimeout)
	envString(EnvPrefix+"LIMITS_RESERVATION_SWEEP_SCHEDULE", &cfg.Limits.ReservationSweepSchedule)
	envString(EnvPrefix+"LIMITS_COUNTER_SWEEP_SCHEDULE", &cfg.Limits.CounterSweepSchedule)

	// Storage overrides
	envString(EnvPrefix+"STORAGE_BACKEND", &cfg.Storage.Backend)
	envString(EnvPrefix+"STORAGE_SQL_DRIVER", &cfg.Storage.SQL.Driver)
	envString(EnvPrefix+"STORAGE_SQL_DSN", &cfg.Storage.SQL.DSN)
	envString(EnvPrefix+"STORAGE_SQL_PATH", &cfg.Storage.SQL.Path)
	envDuration(EnvPrefix+"STORAGE_SQL_BUSY_TIMEOUT", &cfg.Storage.SQL.BusyTimeout)
	envInt(EnvPrefix+"STORAGE_SQL_MAX_OPEN_CONNS", &cfg.Storage.SQL.MaxOpenConns)
	envString(EnvPrefix+"STORAGE_REDIS_ADDR", &cfg.Storage.Redis.Addr)
	envString(EnvPrefix+"STORAGE_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	envInt(EnvPrefix+"STORAGE_REDIS_DB", &cfg.Storage.Redis.DB)
	envString(EnvPrefix+"STORAGE_REDIS_PREFIX", &cfg.Storage.Redis.Prefix)

	// Telemetry overrides
	envString(EnvPrefix+"TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString(EnvPrefix+"TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool(EnvPrefix+"TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString(EnvPrefix+"TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool(EnvPrefix+"TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString(EnvPrefix+"TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envBool(EnvPrefix+"TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	envString(EnvPrefix+"TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	envFloat(EnvPrefix+"TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envInt64(name string, dst *int64) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envFloat(name string, dst *float64) {
	if val := os.Getenv(name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
