package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory storage.
// Counts are lost when the process exits, so it suits tests and single-instance
// development setups only.
//
// MemoryBackend is thread-safe. Update runs its UpdateFunc while holding the
// write lock, which serializes all updates.
type MemoryBackend struct {
	// records maps counter key to record.
	records map[string]Record

	// mu protects access to records.
	mu sync.RWMutex

	// closed rejects calls after Close, mirroring a dropped connection.
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]Record),
	}
}

// Update applies fn to the record for key under the write lock.
func (m *MemoryBackend) Update(ctx context.Context, key string, fn UpdateFunc) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrUnavailable.New("memory backend closed")
	}

	var current *Record
	if rec, ok := m.records[key]; ok {
		current = &rec
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	next.Key = key
	m.records[key] = *next
	stored := *next
	return &stored, nil
}

// Get returns a copy of the record for key.
func (m *MemoryBackend) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrUnavailable.Wrap(err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrUnavailable.New("memory backend closed")
	}

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// DeleteExpired removes records whose window ended at or before the given time.
func (m *MemoryBackend) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, ErrUnavailable.Wrap(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrUnavailable.New("memory backend closed")
	}

	deleted := 0
	for key, rec := range m.records {
		if rec.Expired(before) {
			delete(m.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// Close marks the backend unusable. Subsequent calls fail with ErrUnavailable.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Size returns the number of stored records, expired ones included.
// This is useful for monitoring and testing.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
