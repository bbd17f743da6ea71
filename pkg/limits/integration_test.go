package limits

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"examforge/gatekeeper/pkg/limits/storage"
)

// TestIntegration_SQLiteEndToEnd runs the engine against a real SQLite store.
func TestIntegration_SQLiteEndToEnd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gatekeeper.db")
	backend, err := storage.NewSQLBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	engine, _, _ := newTestEngine(t, Config{Backend: backend, DailyTokenLimit: 100})
	ctx := context.Background()

	// Concurrent reservations against a shared budget
	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.ReserveAITokens(ctx, "user-1", 80)
			if err != nil {
				t.Errorf("ReserveAITokens failed: %v", err)
				return
			}
			if res.Success {
				succeeded.Add(1)
			} else if res.Shortfall != 60 {
				t.Errorf("Expected shortfall 60, got %d", res.Shortfall)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Fatalf("Expected exactly one reservation, got %d", succeeded.Load())
	}

	// Rate limiting through the same store
	for i := 0; i < 9; i++ {
		if r, err := engine.CheckSignup(ctx, "203.0.113.7"); err != nil || !r.Success {
			t.Fatalf("Signup %d: expected success (err=%v)", i+1, err)
		}
	}
	if r, _ := engine.CheckSignup(ctx, "203.0.113.7"); r.Success {
		t.Error("Expected 10th signup to be limited")
	}
}

// TestIntegration_SharedStore checks two engines sharing one database see
// the same counters.
func TestIntegration_SharedStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	open := func() *Engine {
		backend, err := storage.NewSQLBackendWithConfig(storage.SQLBackendConfig{
			Path:        dbPath,
			BusyTimeout: 10 * time.Second,
		})
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		engine, _, _ := newTestEngine(t, Config{Backend: backend})
		return engine
	}

	a := open()
	b := open()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a.CheckFeedback(ctx, "user-7")
		b.CheckFeedback(ctx, "user-7")
	}

	rec, err := a.PeekCounter(ctx, "feedback:user-7")
	if err != nil {
		t.Fatalf("PeekCounter failed: %v", err)
	}
	if rec == nil || rec.Points != 10 {
		t.Errorf("Expected 10 points across engines, got %+v", rec)
	}
}
