package config

import (
	"fmt"
	"os"
	"path/filepath"

	"examforge/gatekeeper/pkg/limits/storage"
)

// OpenBackend opens the counter store selected by cfg. For SQLite files the
// parent directory is created when missing.
func OpenBackend(cfg StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case BackendMemory:
		return storage.NewMemoryBackend(), nil

	case BackendSQL:
		if cfg.SQL.DSN == "" && cfg.SQL.Path != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQL.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		backend, err := storage.NewSQLBackendWithConfig(storage.SQLBackendConfig{
			Driver:             cfg.SQL.Driver,
			DSN:                cfg.SQL.DSN,
			Path:               cfg.SQL.Path,
			BusyTimeout:        cfg.SQL.BusyTimeout,
			CheckpointInterval: cfg.SQL.CheckpointInterval,
			MaxOpenConns:       cfg.SQL.MaxOpenConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s counter store: %w", cfg.SQL.Driver, err)
		}
		return backend, nil

	case BackendRedis:
		backend, err := storage.NewRedisBackend(storage.RedisBackendConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Prefix:     cfg.Redis.Prefix,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis counter store: %w", err)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
