package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newSQLiteBackend(t *testing.T, driver string) *SQLBackend {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "counters.db")
	backend, err := NewSQLBackendWithConfig(SQLBackendConfig{
		Driver: driver,
		Path:   dbPath,
	})
	if err != nil {
		if driver == DriverSQLite3 && strings.Contains(err.Error(), "cgo") {
			t.Skipf("Skipping %s: %v", driver, err)
		}
		t.Fatalf("Failed to create backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLBackend_SQLite(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		return newSQLiteBackend(t, DriverSQLite)
	})
}

func TestSQLBackend_SQLite3(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		return newSQLiteBackend(t, DriverSQLite3)
	})
}

func TestSQLBackend_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()
	expire := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	backend1, err := NewSQLBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	_, err = backend1.Update(ctx, "budget:user-42", func(*Record) (*Record, error) {
		return &Record{Points: 12000, ExpireAt: expire}, nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	backend1.Close()

	backend2, err := NewSQLBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen backend: %v", err)
	}
	defer backend2.Close()

	rec, err := backend2.Get(ctx, "budget:user-42")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil || rec.Points != 12000 || !rec.ExpireAt.Equal(expire) {
		t.Errorf("Expected persisted record, got %+v", rec)
	}
}

func TestSQLBackend_DeleteExpired(t *testing.T) {
	backend := newSQLiteBackend(t, DriverSQLite)
	ctx := context.Background()
	now := time.Now()

	keys := map[string]time.Time{
		"old":  now.Add(-time.Minute),
		"live": now.Add(time.Minute),
	}
	for key, expire := range keys {
		expire := expire
		if _, err := backend.Update(ctx, key, func(*Record) (*Record, error) {
			return &Record{Points: 3, ExpireAt: expire}, nil
		}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	deleted, err := backend.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	if rec, _ := backend.Get(ctx, "old"); rec != nil {
		t.Errorf("Expected old row gone, got %+v", rec)
	}
	if rec, _ := backend.Get(ctx, "live"); rec == nil {
		t.Error("Expected live row kept")
	}
}

func TestSQLBackend_CloseIdempotent(t *testing.T) {
	backend, err := NewSQLBackend(filepath.Join(t.TempDir(), "close.db"))
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}

	if err := backend.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	_, err = backend.Get(context.Background(), "k")
	if !ErrUnavailable.Has(err) {
		t.Errorf("Expected ErrUnavailable after close, got %v", err)
	}
}

func TestSQLBackend_Config(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SQLBackendConfig
		wantErr string
	}{
		{name: "unknown driver", cfg: SQLBackendConfig{Driver: "oracle", DSN: "x"}, wantErr: "unsupported driver"},
		{name: "postgres without dsn", cfg: SQLBackendConfig{Driver: DriverPostgres}, wantErr: "dsn is required"},
		{name: "sqlite without path", cfg: SQLBackendConfig{Driver: DriverSQLite}, wantErr: "db path cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSQLBackendWithConfig(tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDialect_Rebind(t *testing.T) {
	got := postgresDialect.rebind(`UPDATE t SET points = ?, expire_at = ? WHERE "key" = ?`)
	want := `UPDATE t SET points = $1, expire_at = $2 WHERE "key" = $3`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	if q := mysqlDialect.rebind("SELECT ?"); q != "SELECT ?" {
		t.Errorf("mysql rebind should not change query, got %q", q)
	}
}
