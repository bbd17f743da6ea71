package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"examforge/gatekeeper/pkg/cli"
	"examforge/gatekeeper/pkg/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Backend = config.BackendSQL
	cfg.Storage.SQL.Path = filepath.Join(t.TempDir(), "data", "gatekeeper.db")
	cfg.Telemetry.Logging.Level = "error"
	return cfg
}

// seedCounters consumes n points of the feedback policy for id.
func seedCounters(t *testing.T, cfg *config.Config, id string, n int) {
	t.Helper()

	logger, err := newLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	engine, _, err := openEngine(cfg, logger, nil)
	if err != nil {
		t.Fatalf("openEngine() error = %v", err)
	}
	defer engine.Close()

	for i := 0; i < n; i++ {
		if _, err := engine.CheckFeedback(context.Background(), id); err != nil {
			t.Fatalf("CheckFeedback() error = %v", err)
		}
	}
}

func TestPeekCounter_Text(t *testing.T) {
	cfg := sqliteConfig(t)
	seedCounters(t, cfg, "user-7", 3)
	withFlags(t, "", string(cli.FormatText))

	buf := &bytes.Buffer{}
	if err := peekCounter(context.Background(), cfg, "feedback:user-7", buf); err != nil {
		t.Fatalf("peekCounter() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got:\n%s", buf.String())
	}
	fields := strings.Fields(lines[1])
	if fields[0] != "feedback:user-7" || fields[1] != "3" {
		t.Errorf("Row = %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], "from now") {
		t.Errorf("Expected relative expiry, got %q", lines[1])
	}
}

func TestPeekCounter_JSON(t *testing.T) {
	cfg := sqliteConfig(t)
	seedCounters(t, cfg, "user-8", 2)
	withFlags(t, "", string(cli.FormatJSON))

	buf := &bytes.Buffer{}
	if err := peekCounter(context.Background(), cfg, "feedback:user-8", buf); err != nil {
		t.Fatalf("peekCounter() error = %v", err)
	}

	var view counterView
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if view.Key != "feedback:user-8" || view.Points != 2 {
		t.Errorf("view = %+v", view)
	}
	if view.ExpireAt.IsZero() {
		t.Error("Expected expire_at to be set")
	}
}

func TestPeekCounter_Missing(t *testing.T) {
	cfg := sqliteConfig(t)
	withFlags(t, "", string(cli.FormatText))

	err := peekCounter(context.Background(), cfg, "feedback:nobody", &bytes.Buffer{})
	if err == nil {
		t.Fatal("Expected error for missing counter")
	}
	if !strings.Contains(err.Error(), "no counter stored") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSweepCounters(t *testing.T) {
	cfg := sqliteConfig(t)
	seedCounters(t, cfg, "user-9", 1)
	withFlags(t, "", string(cli.FormatText))

	buf := &bytes.Buffer{}
	if err := sweepCounters(context.Background(), cfg, buf); err != nil {
		t.Fatalf("sweepCounters() error = %v", err)
	}

	// The seeded window is still live, so nothing is removed.
	if got := buf.String(); got != "✓ Removed 0 expired counters\n" {
		t.Errorf("Output = %q", got)
	}

	if err := peekCounter(context.Background(), cfg, "feedback:user-9", &bytes.Buffer{}); err != nil {
		t.Errorf("Live counter should survive the sweep: %v", err)
	}
}
