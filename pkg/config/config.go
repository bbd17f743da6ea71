package config

import "time"

// Config is the root configuration structure for gatekeeper.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Limits contains rate limiting and token budget configuration.
	Limits LimitsConfig `yaml:"limits"`

	// Storage selects and configures the counter store.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the sidecar HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// ThrottleAPI applies the "api" policy to every /v1 request, keyed by
	// client address.
	// Default: false
	ThrottleAPI bool `yaml:"throttle_api"`
}

// LimitsConfig contains engine configuration. Policy limits are fixed and
// not configurable.
type LimitsConfig struct {
	// DailyTokenLimit is the per-identity daily AI token budget.
	// Runtime tunable through the watcher.
	// Default: 2000000
	DailyTokenLimit int64 `yaml:"daily_token_limit"`

	// BudgetAlertThreshold (0.0-1.0) flags budgets used beyond this fraction.
	// 0 disables alerts.
	// Default: 0.8
	BudgetAlertThreshold float64 `yaml:"budget_alert_threshold"`

	// TrustProxy honors Forwarded, X-Forwarded-For and X-Real-Ip when
	// resolving client addresses. Runtime tunable through the watcher.
	// Default: false
	TrustProxy bool `yaml:"trust_proxy"`

	// ReservationTimeout is how long a token reservation may stay open.
	// Default: 5m
	ReservationTimeout time.Duration `yaml:"reservation_timeout"`

	// ReservationSweepSchedule is the cron schedule of the reservation sweep.
	// Default: "@every 60s"
	ReservationSweepSchedule string `yaml:"reservation_sweep_schedule"`

	// CounterSweepSchedule is the cron schedule of the expired counter sweep.
	// Default: "@every 5m"
	CounterSweepSchedule string `yaml:"counter_sweep_schedule"`
}

// StorageConfig selects the counter store.
type StorageConfig struct {
	// Backend is the store type.
	// Options: "memory", "sql", "redis"
	// Default: "sql"
	Backend string `yaml:"backend"`

	// SQL configures the SQL store.
	SQL SQLConfig `yaml:"sql"`

	// Redis configures the Redis store.
	Redis RedisConfig `yaml:"redis"`
}

// SQLConfig configures the SQL counter store.
type SQLConfig struct {
	// Driver is the database/sql driver.
	// Options: "sqlite", "sqlite3", "postgres", "mysql"
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// DSN is the connection string. Required for postgres and mysql.
	DSN string `yaml:"dsn"`

	// Path is the SQLite database file, used when DSN is empty.
	// Default: "data/gatekeeper.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits for a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the SQLite WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// MaxOpenConns limits open connections for postgres and mysql.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`
}

// RedisConfig configures the Redis counter store.
type RedisConfig struct {
	// Addr is the Redis server address.
	// Default: "localhost:6379"
	Addr string `yaml:"addr"`

	// Password is the optional Redis password.
	Password string `yaml:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// Prefix namespaces counter keys.
	// Default: "gatekeeper:"
	Prefix string `yaml:"prefix"`

	// MaxRetries bounds optimistic transaction retries per update.
	// Default: 16
	MaxRetries int `yaml:"max_retries"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled exposes the Prometheus endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled exports engine and request spans over OTLP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "gatekeeper"
	ServiceName string `yaml:"service_name"`

	// Sampler is the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled by the "ratio" sampler.
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`
}
