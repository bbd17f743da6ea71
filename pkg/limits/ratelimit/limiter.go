package ratelimit

import (
	"context"
	"fmt"
	"time"

	"examforge/gatekeeper/pkg/limits/storage"
)

// Limiter evaluates policies against the counter store.
type Limiter struct {
	counters *storage.Counters
}

// NewLimiter creates a limiter on counters.
func NewLimiter(counters *storage.Counters) *Limiter {
	return &Limiter{counters: counters}
}

// Check consumes one point for key under policy.
//
// The counter is read and written in a single atomic update:
//
//   - no live window: open one with 1 point, allow
//   - points >= limit: reject, extending the window to now+Block if that is later
//   - otherwise: add a point, allow
//
// Store failures are returned as errors and must be treated as a denial.
func (l *Limiter) Check(ctx context.Context, key string, policy Policy) (Result, error) {
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}

	rejected := false
	rec, err := l.counters.Apply(ctx, key, func(live *storage.Record, now time.Time) (*storage.Record, error) {
		rejected = false
		if live == nil {
			return &storage.Record{Key: key, Points: 1, ExpireAt: now.Add(policy.Window)}, nil
		}

		if live.Points >= policy.Limit {
			rejected = true
			if policy.Block > 0 {
				if blockUntil := now.Add(policy.Block); live.ExpireAt.Before(blockUntil) {
					live.ExpireAt = blockUntil
					return live, nil
				}
			}
			return nil, nil
		}

		live.Points++
		return live, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	if rec == nil {
		return Result{}, fmt.Errorf("rate limit check for %s: counter vanished", key)
	}

	result := Result{
		Success: !rejected,
		Limit:   policy.Limit,
		ResetAt: rec.ExpireAt,
	}
	if !rejected {
		result.Remaining = max(policy.Limit-rec.Points, 0)
	}
	return result, nil
}

// Peek reports the state of key under policy without consuming a point.
func (l *Limiter) Peek(ctx context.Context, key string, policy Policy) (Result, error) {
	rec, err := l.counters.Peek(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit peek for %s: %w", key, err)
	}
	if rec == nil {
		return Result{
			Success:   true,
			Limit:     policy.Limit,
			Remaining: policy.Limit,
			ResetAt:   l.counters.Now().Add(policy.Window),
		}, nil
	}
	remaining := max(policy.Limit-rec.Points, 0)
	return Result{
		Success:   remaining > 0,
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetAt:   rec.ExpireAt,
	}, nil
}
