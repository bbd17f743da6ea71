package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTarget struct {
	mu         sync.Mutex
	limit      int64
	trustProxy bool
	calls      int
	fail       error
}

func (f *fakeTarget) SetDailyTokenLimit(limit int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.limit = limit
	f.calls++
	return nil
}

func (f *fakeTarget) SetTrustProxy(trust bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trustProxy = trust
}

func (f *fakeTarget) snapshot() (int64, bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit, f.trustProxy, f.calls
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "limits:\n  daily_token_limit: 1234\n  trust_proxy: true\n")
	target := &fakeTarget{}

	w, err := NewWatcher(path, target, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if err := w.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	limit, trust, _ := target.snapshot()
	if limit != 1234 || !trust {
		t.Errorf("expected limit 1234 and trust proxy, got %d %v", limit, trust)
	}
}

func TestWatcher_ReloadInvalidKeepsSettings(t *testing.T) {
	path := writeConfig(t, "limits:\n  daily_token_limit: 0\n  budget_alert_threshold: 7\n")
	target := &fakeTarget{limit: 99}

	w, err := NewWatcher(path, target, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if err := w.Reload(); err == nil {
		t.Fatal("expected reload error for invalid file")
	}
	if limit, _, calls := target.snapshot(); limit != 99 || calls != 0 {
		t.Errorf("invalid file must not change settings, got limit %d after %d calls", limit, calls)
	}
}

func TestWatcher_ReloadTargetError(t *testing.T) {
	path := writeConfig(t, "")
	target := &fakeTarget{fail: errors.New("rejected")}

	w, err := NewWatcher(path, target, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Reload(); err == nil {
		t.Error("expected target error to be returned")
	}
}

func TestWatcher_Watch(t *testing.T) {
	path := writeConfig(t, "limits:\n  daily_token_limit: 100\n")
	target := &fakeTarget{}

	w, err := NewWatcher(path, target, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.SetDebounceInterval(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("limits:\n  daily_token_limit: 4242\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	// Unrelated files in the same directory are ignored
	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte("limits:\n  daily_token_limit: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write other file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if limit, _, _ := target.snapshot(); limit == 4242 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if limit, _, _ := target.snapshot(); limit != 4242 {
		t.Errorf("expected reloaded limit 4242, got %d", limit)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestNewWatcher_Errors(t *testing.T) {
	if _, err := NewWatcher("", &fakeTarget{}, nil); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewWatcher("gatekeeper.yaml", nil, nil); err == nil {
		t.Error("expected error for nil target")
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := i
		d.Trigger(func() {
			calls.Add(1)
			last.Store(int32(i))
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("expected last callback to win, got %d", last.Load())
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Error("triggers after Stop must be ignored")
	}
}
