// Package budget tracks daily AI token consumption per identity.
//
// # Overview
//
// Each identity has one fixed 24-hour window counting units (tokens) used,
// stored under the key "ai_tokens:<identity>" in the shared counter store. The
// window opens with the first charge and closes 24 hours later; the next
// charge after that starts from zero.
//
// # Usage
//
//	tracker := budget.NewTracker(counters, budget.Config{
//	    DailyLimit:     2_000_000,
//	    AlertThreshold: 0.8, // flag at 80%
//	})
//
//	status, err := tracker.Check(ctx, "user-42")
//	if status.Allowed {
//	    // some budget left
//	}
//
//	// Atomic check-and-add used by reservations
//	status, err = tracker.TryCharge(ctx, "user-42", 5000)
//	var insufficient *budget.InsufficientError
//	if errors.As(err, &insufficient) {
//	    // insufficient.Shortfall units missing, nothing charged
//	}
//
// # Runtime Changes
//
// SetDailyLimit changes the limit for every identity at once. Usage already
// recorded is kept; remaining budget is recomputed against the new limit.
//
// # Thread Safety
//
// Tracker is safe for concurrent use. Every mutation is a single atomic counter
// update, so concurrent charges for one identity never overspend.
package budget
