package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"examforge/gatekeeper/pkg/config"
	"examforge/gatekeeper/pkg/limits"
	"examforge/gatekeeper/pkg/telemetry/logging"
)

// newLogger builds the process logger from the telemetry config.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// openEngine opens the configured store and creates an engine on it. The
// returned registry holds the engine and runtime metrics.
// A nil tp uses the global tracer provider.
func openEngine(cfg *config.Config, logger *slog.Logger, tp trace.TracerProvider) (*limits.Engine, *prometheus.Registry, error) {
	backend, err := config.OpenBackend(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := limits.New(limits.Config{
		Backend:                  backend,
		DailyTokenLimit:          cfg.Limits.DailyTokenLimit,
		BudgetAlertThreshold:     cfg.Limits.BudgetAlertThreshold,
		TrustProxy:               cfg.Limits.TrustProxy,
		ReservationTimeout:       cfg.Limits.ReservationTimeout,
		ReservationSweepSchedule: cfg.Limits.ReservationSweepSchedule,
		CounterSweepSchedule:     cfg.Limits.CounterSweepSchedule,
		Logger:                   logger,
		Registerer:               reg,
		TracerProvider:           tp,
	})
	if err != nil {
		backend.Close()
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return engine, reg, nil
}
