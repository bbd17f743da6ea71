package storage

import (
	"context"
	"time"
)

// Record is a single fixed-window counter.
type Record struct {
	// Key identifies the limited resource and subject (e.g. "auth:203.0.113.7").
	Key string

	// Points is the number of units consumed in the current window.
	Points int64

	// ExpireAt marks the end of the current window.
	ExpireAt time.Time
}

// Expired reports whether the record's window has ended at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpireAt.After(now)
}

// UpdateFunc computes the next state of a counter.
//
// current is nil when no row exists. Returning a nil record leaves storage
// untouched; returning an error aborts the transaction without writing and the
// error is handed back to the caller of Update unchanged.
type UpdateFunc func(current *Record) (*Record, error)

// Backend persists counter records.
// Implementations must be thread-safe and must run Update as a single atomic
// transaction per key so concurrent updates are never lost.
type Backend interface {
	// Update reads the record for key, applies fn and writes the result in
	// one transaction. It returns the record as stored after the call, or nil
	// when no record exists and fn chose not to write.
	Update(ctx context.Context, key string, fn UpdateFunc) (*Record, error)

	// Get returns the raw record for key, expired or not. Returns nil if no
	// row exists.
	Get(ctx context.Context, key string) (*Record, error)

	// DeleteExpired removes records whose window ended at or before the given
	// time and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int, error)

	// Close releases resources held by the backend.
	Close() error
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time
