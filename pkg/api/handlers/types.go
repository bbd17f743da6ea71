package handlers

import (
	"time"

	"examforge/gatekeeper/pkg/limits/budget"
	"examforge/gatekeeper/pkg/limits/ratelimit"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// PolicyResponse describes one policy of the catalog.
type PolicyResponse struct {
	Name          string `json:"name"`
	Limit         int64  `json:"limit"`
	WindowSeconds int64  `json:"window_seconds"`
	BlockSeconds  int64  `json:"block_seconds,omitempty"`
}

func newPolicyResponse(p ratelimit.Policy) PolicyResponse {
	return PolicyResponse{
		Name:          p.Name,
		Limit:         p.Limit,
		WindowSeconds: int64(p.Window / time.Second),
		BlockSeconds:  int64(p.Block / time.Second),
	}
}

// RateLimitRequest is the body of POST /v1/ratelimit/{policy}.
type RateLimitRequest struct {
	Identity string `json:"identity"`
}

// RateLimitResponse reports an allowed rate limit check.
type RateLimitResponse struct {
	Policy    string    `json:"policy"`
	Identity  string    `json:"identity"`
	Success   bool      `json:"success"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

func newRateLimitResponse(policy, id string, r ratelimit.Result) RateLimitResponse {
	return RateLimitResponse{
		Policy:    policy,
		Identity:  id,
		Success:   r.Success,
		Limit:     r.Limit,
		Remaining: r.Remaining,
		ResetAt:   r.ResetAt.UTC(),
	}
}

// UsageRequest is the body of POST /v1/budget/{identity}/usage.
type UsageRequest struct {
	Units int64 `json:"units"`
}

// BudgetResponse reports the token budget of one identity.
type BudgetResponse struct {
	Identity       string    `json:"identity"`
	Allowed        bool      `json:"allowed"`
	Limit          int64     `json:"limit"`
	Used           int64     `json:"used"`
	Remaining      int64     `json:"remaining"`
	Percentage     float64   `json:"percentage"`
	ResetAt        time.Time `json:"reset_at"`
	AlertTriggered bool      `json:"alert_triggered"`
}

func newBudgetResponse(id string, s budget.Status) BudgetResponse {
	return BudgetResponse{
		Identity:       id,
		Allowed:        s.Allowed,
		Limit:          s.Limit,
		Used:           s.Used,
		Remaining:      s.Remaining,
		Percentage:     s.Percentage,
		ResetAt:        s.ResetAt.UTC(),
		AlertTriggered: s.AlertTriggered,
	}
}

// ReserveRequest is the body of POST /v1/reservations.
type ReserveRequest struct {
	Identity       string `json:"identity"`
	EstimatedUnits int64  `json:"estimated_units"`
}

// CompleteRequest is the body of POST /v1/reservations/{id}/complete.
type CompleteRequest struct {
	ActualUnits int64 `json:"actual_units"`
}
