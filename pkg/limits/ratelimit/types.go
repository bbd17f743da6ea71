package ratelimit

import (
	"fmt"
	"time"
)

// Policy describes a fixed-window limit.
type Policy struct {
	// Name prefixes the counter key of every subject limited by this policy.
	Name string

	// Limit is the number of actions allowed per window.
	Limit int64

	// Window is the length of a counting window.
	Window time.Duration

	// Block extends the window to now+Block when a check is rejected.
	// Zero disables penalty blocks.
	Block time.Duration
}

// Key returns the counter key for identity under this policy.
func (p Policy) Key(identity string) string {
	return p.Name + ":" + identity
}

// Validate checks the policy for obviously broken values.
func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("policy %q: limit must be positive, got %d", p.Name, p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %q: window must be positive, got %v", p.Name, p.Window)
	}
	if p.Block < 0 {
		return fmt.Errorf("policy %q: block cannot be negative, got %v", p.Name, p.Block)
	}
	return nil
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Success indicates if the action is permitted.
	Success bool

	// Limit is the policy limit.
	Limit int64

	// Remaining is how many actions remain in the current window.
	Remaining int64

	// ResetAt is when the current window (or penalty block) ends.
	ResetAt time.Time
}

// RetryAfter returns how long a rejected caller should wait at now.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
