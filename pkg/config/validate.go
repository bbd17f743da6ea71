package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}

	return errs
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.DailyTokenLimit <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.daily_token_limit",
			Message: fmt.Sprintf("must be positive, got %d", cfg.DailyTokenLimit),
		})
	}

	if cfg.BudgetAlertThreshold < 0 || cfg.BudgetAlertThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   "limits.budget_alert_threshold",
			Message: fmt.Sprintf("must be between 0.0 and 1.0, got %v", cfg.BudgetAlertThreshold),
		})
	}

	if cfg.ReservationTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "limits.reservation_timeout",
			Message: "reservation timeout must be positive",
		})
	}

	schedules := []struct{ field, value string }{
		{"limits.reservation_sweep_schedule", cfg.ReservationSweepSchedule},
		{"limits.counter_sweep_schedule", cfg.CounterSweepSchedule},
	}
	for _, s := range schedules {
		if _, err := cron.ParseStandard(s.value); err != nil {
			errs = append(errs, FieldError{
				Field:   s.field,
				Message: fmt.Sprintf("invalid cron schedule %q: %v", s.value, err),
			})
		}
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case BackendMemory:
	case BackendSQL:
		errs = append(errs, validateSQL(&cfg.SQL)...)
	case BackendRedis:
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{Field: "storage.redis.addr", Message: "address is required"})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "storage.redis.db", Message: "database must be non-negative"})
		}
		if cfg.Redis.MaxRetries < 0 {
			errs = append(errs, FieldError{Field: "storage.redis.max_retries", Message: "max retries must be non-negative"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory, sql or redis)", cfg.Backend),
		})
	}

	return errs
}

func validateSQL(cfg *SQLConfig) []FieldError {
	var errs []FieldError

	switch cfg.Driver {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" && cfg.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sql.path", Message: "path or dsn is required for sqlite"})
		}
	case "postgres", "mysql":
		if cfg.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sql.dsn",
				Message: fmt.Sprintf("dsn is required for %s", cfg.Driver),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.sql.driver",
			Message: fmt.Sprintf("invalid driver %q (must be sqlite, sqlite3, postgres or mysql)", cfg.Driver),
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.sql.busy_timeout", Message: "busy timeout must be non-negative"})
	}
	if cfg.CheckpointInterval < 0 {
		errs = append(errs, FieldError{Field: "storage.sql.checkpoint_interval", Message: "checkpoint interval must be non-negative"})
	}
	if cfg.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "storage.sql.max_open_conns", Message: "max open connections must be non-negative"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		if cfg.Tracing.Timeout < 0 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.timeout", Message: "timeout must be positive"})
		}
	}

	switch cfg.Tracing.Sampler {
	case "always", "never":
	case "ratio":
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0 and 1, got %g", cfg.Tracing.SampleRatio),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Tracing.Sampler),
		})
	}

	return errs
}
