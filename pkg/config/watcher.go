package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a change is reloaded.
const DefaultDebounceInterval = 250 * time.Millisecond

// Tunable receives the settings that can change without a restart.
// *limits.Engine implements it.
type Tunable interface {
	SetDailyTokenLimit(limit int64) error
	SetTrustProxy(trust bool)
}

// Watcher reloads a configuration file when it changes and applies the
// runtime-tunable settings to a Tunable.
type Watcher struct {
	path     string
	target   Tunable
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, target Tunable, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if target == nil {
		return nil, fmt.Errorf("reload target is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return &Watcher{
		path:     abs,
		target:   target,
		logger:   logger.With("component", "config"),
		interval: DefaultDebounceInterval,
	}, nil
}

// SetDebounceInterval changes the quiet period. Call before Watch.
func (w *Watcher) SetDebounceInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

// Watch watches the file until ctx is cancelled. The parent directory is
// watched so editors that replace the file by rename are seen.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(w.path), err)
	}

	debounce := NewDebouncer(w.interval)
	defer debounce.Stop()

	w.logger.Info("config watcher started",
		"path", w.path,
		"debounce_ms", w.interval.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("config file event", "op", event.Op.String())
			debounce.Trigger(func() {
				if err := w.Reload(); err != nil {
					w.logger.Error("config reload failed, keeping current settings", "error", err)
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// Reload loads the file with environment overrides and applies the daily
// token limit and trust proxy flag. Nothing is applied when loading fails.
func (w *Watcher) Reload() error {
	cfg, err := LoadConfigWithEnvOverrides(w.path)
	if err != nil {
		return err
	}

	if err := w.target.SetDailyTokenLimit(cfg.Limits.DailyTokenLimit); err != nil {
		return fmt.Errorf("failed to apply daily token limit: %w", err)
	}
	w.target.SetTrustProxy(cfg.Limits.TrustProxy)

	w.logger.Info("config reloaded",
		"daily_token_limit", cfg.Limits.DailyTokenLimit,
		"trust_proxy", cfg.Limits.TrustProxy,
	)
	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// Debouncer collects rapid events and runs the last callback once the
// interval passes without a new one.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
