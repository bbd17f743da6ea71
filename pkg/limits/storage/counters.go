package storage

import (
	"context"
	"time"
)

// ApplyFunc computes the next state of a live counter. live is nil when the
// key has no record or its window has ended. Return semantics follow UpdateFunc.
type ApplyFunc func(live *Record, now time.Time) (*Record, error)

// Counters implements fixed-window counting on top of a Backend.
type Counters struct {
	backend Backend
	now     Clock
}

// NewCounters wraps backend. A nil clock uses time.Now.
func NewCounters(backend Backend, clock Clock) *Counters {
	if clock == nil {
		clock = time.Now
	}
	return &Counters{backend: backend, now: clock}
}

// Backend returns the underlying backend.
func (c *Counters) Backend() Backend {
	return c.backend
}

// Now returns the current time as seen by the counters.
func (c *Counters) Now() time.Time {
	return c.now()
}

// Apply runs fn against the live record for key inside a single backend
// transaction. The returned record is nil when the key has no live window
// after the call.
func (c *Counters) Apply(ctx context.Context, key string, fn ApplyFunc) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	now := c.now()
	rec, err := c.backend.Update(ctx, key, func(current *Record) (*Record, error) {
		if current != nil && current.Expired(now) {
			current = nil
		}
		return fn(current, now)
	})
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Expired(now) {
		return nil, nil
	}
	return rec, nil
}

// Consume adds one point to key, opening a window of the given length when
// none is live.
func (c *Counters) Consume(ctx context.Context, key string, window time.Duration) (*Record, error) {
	return c.Apply(ctx, key, func(live *Record, now time.Time) (*Record, error) {
		if live == nil {
			return &Record{Key: key, Points: 1, ExpireAt: now.Add(window)}, nil
		}
		live.Points++
		return live, nil
	})
}

// Adjust adds delta (which may be negative) to key. A positive delta on a key
// without a live window opens one of length windowIfNew; a non-positive delta
// on such a key is a no-op. Points never drop below zero.
func (c *Counters) Adjust(ctx context.Context, key string, delta int64, windowIfNew time.Duration) (*Record, error) {
	return c.Apply(ctx, key, func(live *Record, now time.Time) (*Record, error) {
		if live == nil {
			if delta <= 0 {
				return nil, nil
			}
			return &Record{Key: key, Points: delta, ExpireAt: now.Add(windowIfNew)}, nil
		}
		live.Points += delta
		if live.Points < 0 {
			live.Points = 0
		}
		return live, nil
	})
}

// Peek returns the live record for key, or nil when it is absent or expired.
func (c *Counters) Peek(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	rec, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Expired(c.now()) {
		return nil, nil
	}
	return rec, nil
}

// Sweep physically removes every record whose window has ended.
func (c *Counters) Sweep(ctx context.Context) (int, error) {
	return c.backend.DeleteExpired(ctx, c.now())
}
