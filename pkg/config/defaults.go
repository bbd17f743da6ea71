package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Limits defaults
	DefaultDailyTokenLimit          = int64(2_000_000)
	DefaultBudgetAlertThreshold     = 0.8
	DefaultReservationTimeout       = 5 * time.Minute
	DefaultReservationSweepSchedule = "@every 60s"
	DefaultCounterSweepSchedule     = "@every 5m"

	// Storage defaults
	DefaultStorageBackend        = BackendSQL
	DefaultSQLDriver             = "sqlite"
	DefaultSQLPath               = "data/gatekeeper.db"
	DefaultSQLBusyTimeout        = 5 * time.Second
	DefaultSQLCheckpointInterval = 5 * time.Minute
	DefaultSQLMaxOpenConns       = 10
	DefaultRedisAddr             = "localhost:6379"
	DefaultRedisPrefix           = "gatekeeper:"
	DefaultRedisMaxRetries       = 16

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingServiceName = "gatekeeper"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

// Default returns a configuration with every default applied. LoadConfig
// decodes files on top of it, so booleans left out of a file keep their
// defaults.
func Default() *Config {
	cfg := &Config{
		Limits: LimitsConfig{
			BudgetAlertThreshold: DefaultBudgetAlertThreshold,
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
			Tracing: TracingConfig{SampleRatio: DefaultTracingSampleRatio},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Limits defaults
	if cfg.Limits.DailyTokenLimit == 0 {
		cfg.Limits.DailyTokenLimit = DefaultDailyTokenLimit
	}
	if cfg.Limits.ReservationTimeout == 0 {
		cfg.Limits.ReservationTimeout = DefaultReservationTimeout
	}
	if cfg.Limits.ReservationSweepSchedule == "" {
		cfg.Limits.ReservationSweepSchedule = DefaultReservationSweepSchedule
	}
	if cfg.Limits.CounterSweepSchedule == "" {
		cfg.Limits.CounterSweepSchedule = DefaultCounterSweepSchedule
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQL.Driver == "" {
		cfg.Storage.SQL.Driver = DefaultSQLDriver
	}
	if cfg.Storage.SQL.Path == "" && cfg.Storage.SQL.DSN == "" {
		cfg.Storage.SQL.Path = DefaultSQLPath
	}
	if cfg.Storage.SQL.BusyTimeout == 0 {
		cfg.Storage.SQL.BusyTimeout = DefaultSQLBusyTimeout
	}
	if cfg.Storage.SQL.CheckpointInterval == 0 {
		cfg.Storage.SQL.CheckpointInterval = DefaultSQLCheckpointInterval
	}
	if cfg.Storage.SQL.MaxOpenConns == 0 {
		cfg.Storage.SQL.MaxOpenConns = DefaultSQLMaxOpenConns
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Storage.Redis.MaxRetries == 0 {
		cfg.Storage.Redis.MaxRetries = DefaultRedisMaxRetries
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
}
