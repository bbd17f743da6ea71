package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if got := New(0).timeout; got != DefaultCheckTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultCheckTimeout, got)
	}
	if got := New(time.Second).timeout; got != time.Second {
		t.Errorf("expected timeout 1s, got %v", got)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusReady,
			wantCode:   http.StatusOK,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"store": func(ctx context.Context) error { return nil },
			},
			wantStatus: StatusReady,
			wantCode:   http.StatusOK,
		},
		{
			name: "failing check",
			checks: map[string]CheckFunc{
				"store":  func(ctx context.Context) error { return errors.New("store unavailable") },
				"config": func(ctx context.Context) error { return nil },
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name: "timed out check",
			checks: map[string]CheckFunc{
				"store": func(ctx context.Context) error {
					<-ctx.Done()
					time.Sleep(10 * time.Millisecond)
					return nil
				},
			},
			wantStatus: StatusDegraded,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(50 * time.Millisecond)
			for name, check := range tt.checks {
				checker.RegisterCheck(name, check)
			}

			w := httptest.NewRecorder()
			checker.ReadinessHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status code %d, got %d", tt.wantCode, w.Code)
			}

			var report Report
			if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
				t.Fatalf("failed to decode report: %v", err)
			}
			if report.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, report.Status)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("expected %d check results, got %d", len(tt.checks), len(report.Checks))
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	checker := New(0)
	checker.RegisterCheck("store", func(ctx context.Context) error { return errors.New("down") })

	w := httptest.NewRecorder()
	checker.LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("liveness must not depend on checks, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	checker.LivenessHandler()(w, httptest.NewRequest(http.MethodHead, "/health", nil))
	if w.Body.Len() != 0 {
		t.Error("HEAD response must have no body")
	}
}

func TestChecks(t *testing.T) {
	checker := New(0)
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("config", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("store", func(ctx context.Context) error { return nil })

	names := checker.Checks()
	if len(names) != 2 || names[0] != "config" || names[1] != "store" {
		t.Errorf("unexpected checks: %v", names)
	}
}
