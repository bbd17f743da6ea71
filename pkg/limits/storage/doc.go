// Package storage provides the durable fixed-window counter store.
//
// # Overview
//
// A counter is a (key, points, expire_at) record. Points count units consumed
// inside the window that ends at expire_at. A record whose expire_at is not in
// the future is logically absent: every operation treats it as missing and
// starts a fresh window on top of it.
//
// Backends persist records and perform one atomic read-modify-write per key:
//
//   - Memory: in-process map guarded by a mutex (tests, single instance)
//   - SQL: SQLite (modernc or mattn driver), PostgreSQL or MySQL
//   - Redis: WATCH/MULTI transactions, shared by many instances
//
// Counters wraps a Backend with the window semantics:
//
//	counters := storage.NewCounters(backend, nil)
//	rec, err := counters.Consume(ctx, "auth:203.0.113.7", 15*time.Minute)
//	rec, err = counters.Adjust(ctx, "ai_tokens:user-1", -5000, 24*time.Hour)
//	rec, err = counters.Peek(ctx, "auth:203.0.113.7") // nil when absent or expired
//
// # Failure Policy
//
// Every backend failure is wrapped in the ErrUnavailable class and returned.
// Callers must treat it as a denial: a store that cannot be read never means
// "no limit".
//
// # Thread Safety
//
// All backends are safe for concurrent use. Updates to the same key are
// serialized; updates to different keys may proceed in parallel.
package storage
