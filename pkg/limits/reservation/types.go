package reservation

import "time"

// DefaultTimeout is how long a reservation may stay open before Sweep
// expires it.
const DefaultTimeout = 5 * time.Minute

// Reasons reported in unsuccessful results.
const (
	ReasonInsufficientBudget = "insufficient_budget"
	ReasonNotFound           = "reservation_not_found"
)

// Reservation is an open pre-charge against an identity's budget.
type Reservation struct {
	ID             string
	Identity       string
	EstimatedUnits int64
	CreatedAt      time.Time
}

// ReserveResult is the outcome of Reserve.
type ReserveResult struct {
	// Success indicates the estimate was charged and a reservation opened.
	Success bool `json:"success"`

	// ReservationID identifies the reservation for Complete or Cancel.
	ReservationID string `json:"reservation_id,omitempty"`

	// Remaining is the budget left after the charge, or before the failed one.
	Remaining int64 `json:"remaining"`

	// Shortfall is how many units the budget lacked. Zero on success.
	Shortfall int64 `json:"shortfall,omitempty"`

	// Reason explains an unsuccessful result.
	Reason string `json:"reason,omitempty"`
}

// CompleteResult is the outcome of Complete.
type CompleteResult struct {
	// Success indicates the reservation existed and was settled.
	Success bool `json:"success"`

	// Adjusted is estimate minus actual: positive when units were refunded,
	// negative when more was charged.
	Adjusted int64 `json:"adjusted"`

	// TotalUsed is the identity's usage after settlement.
	TotalUsed int64 `json:"total_used"`

	// Remaining is the identity's budget after settlement.
	Remaining int64 `json:"remaining"`

	// Reason explains an unsuccessful result.
	Reason string `json:"reason,omitempty"`
}
