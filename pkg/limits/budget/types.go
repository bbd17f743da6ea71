package budget

import (
	"errors"
	"fmt"
	"time"
)

// Window is the length of a budget window.
const Window = 24 * time.Hour

// KeyPrefix prefixes every budget counter key.
const KeyPrefix = "ai_tokens:"

// DefaultDailyLimit is used when no limit is configured.
const DefaultDailyLimit = 2_000_000

// Config contains budget settings.
type Config struct {
	// DailyLimit is the number of units an identity may use per window.
	DailyLimit int64

	// AlertThreshold is the usage fraction (0.0-1.0) at which Status reports
	// AlertTriggered. Zero disables alerts.
	AlertThreshold float64
}

// Status contains the budget status of one identity.
type Status struct {
	// Allowed indicates if any budget remains.
	Allowed bool

	// Limit is the configured daily limit.
	Limit int64

	// Used is the number of units charged in the current window.
	Used int64

	// Remaining is Limit-Used, never negative.
	Remaining int64

	// Percentage is the fraction of the limit used (may exceed 1.0 after a
	// settlement reported more than was estimated).
	Percentage float64

	// ResetAt is when the current window ends.
	ResetAt time.Time

	// AlertTriggered indicates if the alert threshold was reached.
	AlertTriggered bool
}

// ErrInvalidUnits is returned for negative or otherwise unusable unit counts.
var ErrInvalidUnits = errors.New("invalid unit count")

// InsufficientError is returned by TryCharge when the remaining budget cannot
// cover the request. Nothing is charged.
type InsufficientError struct {
	Requested int64
	Remaining int64
	Shortfall int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient token budget: requested %d, remaining %d (short by %d)",
		e.Requested, e.Remaining, e.Shortfall)
}
