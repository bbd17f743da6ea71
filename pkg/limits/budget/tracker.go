package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"examforge/gatekeeper/pkg/limits/storage"
)

// Tracker tracks token usage per identity against a daily limit.
//
// The Tracker keeps no usage state of its own: every figure comes from the
// counter store, so several processes sharing a store see the same budget.
// Usage lives under the key "ai_tokens:<identity>" in a 24h fixed window
// that opens with the first charge.
//
// # Alert Thresholds
//
// When AlertThreshold is set, the returned Status reports AlertTriggered
// once usage reaches that fraction of the daily limit.
type Tracker struct {
	counters *storage.Counters

	config Config
	mu     sync.RWMutex
}

// NewTracker creates a new budget tracker on counters.
//
// A non-positive DailyLimit falls back to DefaultDailyLimit.
//
// Example:
//
//	tracker := NewTracker(counters, Config{
//	    DailyLimit:     2_000_000,
//	    AlertThreshold: 0.8,
//	})
func NewTracker(counters *storage.Counters, config Config) *Tracker {
	if config.DailyLimit <= 0 {
		config.DailyLimit = DefaultDailyLimit
	}
	return &Tracker{
		counters: counters,
		config:   config,
	}
}

// Key returns the counter key for identity.
func Key(identity string) string {
	return KeyPrefix + identity
}

// DailyLimit returns the current daily limit.
func (t *Tracker) DailyLimit() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config.DailyLimit
}

// SetDailyLimit replaces the daily limit. Non-positive values are rejected.
func (t *Tracker) SetDailyLimit(limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("%w: daily limit must be positive, got %d", ErrInvalidUnits, limit)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config.DailyLimit = limit
	return nil
}

// Check returns the budget status of identity. Allowed is true while any
// budget remains.
//
// An identity with no live window reports the full limit as remaining.
//
// Example:
//
//	status, err := tracker.Check(ctx, "user-42")
//	if err != nil {
//	    return err // store unavailable: fail closed
//	}
//	if !status.Allowed {
//	    // budget spent until status.ResetAt
//	}
func (t *Tracker) Check(ctx context.Context, identity string) (Status, error) {
	rec, err := t.counters.Peek(ctx, Key(identity))
	if err != nil {
		return Status{}, fmt.Errorf("budget check for %s: %w", identity, err)
	}
	return t.status(rec), nil
}

// Usage returns the budget status of identity without side effects.
func (t *Tracker) Usage(ctx context.Context, identity string) (Status, error) {
	return t.Check(ctx, identity)
}

// Record charges units directly, without a reservation. The charge is applied
// even when it exceeds the remaining budget.
func (t *Tracker) Record(ctx context.Context, identity string, units int64) (Status, error) {
	if units < 0 {
		return Status{}, fmt.Errorf("%w: units cannot be negative, got %d", ErrInvalidUnits, units)
	}
	if units == 0 {
		return t.Check(ctx, identity)
	}
	return t.Adjust(ctx, identity, units)
}

// TryCharge adds units to identity's usage only if the remaining budget covers
// them. Otherwise it returns an *InsufficientError and charges nothing.
// The check and the charge are one atomic update.
func (t *Tracker) TryCharge(ctx context.Context, identity string, units int64) (Status, error) {
	if units <= 0 {
		return Status{}, fmt.Errorf("%w: units must be positive, got %d", ErrInvalidUnits, units)
	}

	// Read the limit once so the check and the returned status agree
	limit := t.DailyLimit()
	rec, err := t.counters.Apply(ctx, Key(identity), func(live *storage.Record, now time.Time) (*storage.Record, error) {
		var used int64
		if live != nil {
			used = live.Points
		}

		// Reject without writing when the budget cannot cover units
		remaining := max(limit-used, 0)
		if remaining < units {
			return nil, &InsufficientError{
				Requested: units,
				Remaining: remaining,
				Shortfall: units - remaining,
			}
		}

		// First charge opens the daily window
		if live == nil {
			return &storage.Record{Points: units, ExpireAt: now.Add(Window)}, nil
		}
		live.Points += units
		return live, nil
	})
	if err != nil {
		var insufficient *InsufficientError
		if errors.As(err, &insufficient) {
			return Status{}, insufficient
		}
		return Status{}, fmt.Errorf("budget charge for %s: %w", identity, err)
	}
	return t.statusWithLimit(rec, limit), nil
}

// Adjust adds delta (which may be negative) to identity's usage. Usage never
// drops below zero, and a refund against an ended window is dropped.
func (t *Tracker) Adjust(ctx context.Context, identity string, delta int64) (Status, error) {
	rec, err := t.counters.Adjust(ctx, Key(identity), delta, Window)
	if err != nil {
		return Status{}, fmt.Errorf("budget adjust for %s: %w", identity, err)
	}
	return t.status(rec), nil
}

func (t *Tracker) status(rec *storage.Record) Status {
	return t.statusWithLimit(rec, t.DailyLimit())
}

// statusWithLimit builds a Status from a live record (nil for no usage).
func (t *Tracker) statusWithLimit(rec *storage.Record, limit int64) Status {
	t.mu.RLock()
	threshold := t.config.AlertThreshold
	t.mu.RUnlock()

	// No record means nothing used in the current window
	var used int64
	resetAt := t.counters.Now().Add(Window)
	if rec != nil {
		used = rec.Points
		resetAt = rec.ExpireAt
	}

	remaining := max(limit-used, 0)
	percentage := float64(used) / float64(limit)

	return Status{
		Allowed:        remaining > 0,
		Limit:          limit,
		Used:           used,
		Remaining:      remaining,
		Percentage:     percentage,
		ResetAt:        resetAt,
		AlertTriggered: threshold > 0 && percentage >= threshold,
	}
}
