package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"examforge/gatekeeper/pkg/limits/budget"
)

// Config configures a Manager.
type Config struct {
	// Timeout is how long a reservation may stay open.
	// Default: 5 minutes
	Timeout time.Duration

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// Logger receives audit and warning logs. Default: slog.Default()
	Logger *slog.Logger
}

// Manager opens and settles token reservations.
//
// Manager is safe for concurrent use. The ledger lock is never held across a
// store call: a reservation is claimed (removed from the ledger) first and
// only then settled, so two concurrent Complete calls cannot both settle it.
type Manager struct {
	tracker *budget.Tracker
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]Reservation
}

// NewManager creates a reservation manager charging tracker.
func NewManager(tracker *budget.Tracker, cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		tracker: tracker,
		timeout: cfg.Timeout,
		now:     cfg.Clock,
		logger:  cfg.Logger.With("component", "reservation"),
		pending: make(map[string]Reservation),
	}
}

// Timeout returns the reservation timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Reserve charges estimatedUnits to identity and opens a reservation.
//
// When the remaining budget cannot cover the estimate the result reports
// Success=false with the shortfall and nothing is charged. Errors are
// returned only for invalid input and store failures.
func (m *Manager) Reserve(ctx context.Context, identity string, estimatedUnits int64) (ReserveResult, error) {
	if estimatedUnits <= 0 {
		return ReserveResult{}, fmt.Errorf("%w: estimated units must be positive, got %d", budget.ErrInvalidUnits, estimatedUnits)
	}

	status, err := m.tracker.TryCharge(ctx, identity, estimatedUnits)
	if err != nil {
		var insufficient *budget.InsufficientError
		if errors.As(err, &insufficient) {
			return ReserveResult{
				Success:   false,
				Remaining: insufficient.Remaining,
				Shortfall: insufficient.Shortfall,
				Reason:    ReasonInsufficientBudget,
			}, nil
		}
		return ReserveResult{}, err
	}

	res := Reservation{
		ID:             uuid.NewString(),
		Identity:       identity,
		EstimatedUnits: estimatedUnits,
		CreatedAt:      m.now(),
	}

	m.mu.Lock()
	m.pending[res.ID] = res
	m.mu.Unlock()

	m.logger.Debug("reservation opened",
		"reservation_id", res.ID,
		"identity", identity,
		"estimated_units", estimatedUnits,
		"remaining", status.Remaining,
	)

	return ReserveResult{
		Success:       true,
		ReservationID: res.ID,
		Remaining:     status.Remaining,
	}, nil
}

// Complete settles a reservation with the actual usage: the identity's usage
// moves by actualUnits-estimate.
//
// An unknown, completed, cancelled or expired id yields Success=false with
// ReasonNotFound and changes nothing.
//
// A store error puts the reservation back so the call can be retried. The
// error is ambiguous: the store may have committed the adjustment before the
// failure was reported, in which case a retry adjusts the usage twice.
func (m *Manager) Complete(ctx context.Context, reservationID string, actualUnits int64) (CompleteResult, error) {
	if actualUnits < 0 {
		return CompleteResult{}, fmt.Errorf("%w: actual units cannot be negative, got %d", budget.ErrInvalidUnits, actualUnits)
	}

	res, ok := m.claim(reservationID)
	if !ok {
		m.logger.Warn("completion for unknown reservation", "reservation_id", reservationID)
		return CompleteResult{Success: false, Reason: ReasonNotFound}, nil
	}

	delta := actualUnits - res.EstimatedUnits
	status, err := m.settle(ctx, res, delta)
	if err != nil {
		m.restore(res)
		return CompleteResult{}, err
	}

	m.logger.Info("reservation completed",
		"reservation_id", res.ID,
		"identity", res.Identity,
		"estimated_units", res.EstimatedUnits,
		"actual_units", actualUnits,
		"adjustment", delta,
		"total_used", status.Used,
		"remaining", status.Remaining,
	)

	return CompleteResult{
		Success:   true,
		Adjusted:  res.EstimatedUnits - actualUnits,
		TotalUsed: status.Used,
		Remaining: status.Remaining,
	}, nil
}

// Cancel refunds the full estimate of an open reservation. It reports false
// when the reservation does not exist or has already ended. Store errors
// leave the reservation open, with the same retry caveat as Complete.
func (m *Manager) Cancel(ctx context.Context, reservationID string) (bool, error) {
	res, ok := m.claim(reservationID)
	if !ok {
		m.logger.Warn("cancellation for unknown reservation", "reservation_id", reservationID)
		return false, nil
	}

	status, err := m.settle(ctx, res, -res.EstimatedUnits)
	if err != nil {
		m.restore(res)
		return false, err
	}

	m.logger.Info("reservation cancelled",
		"reservation_id", res.ID,
		"identity", res.Identity,
		"refunded_units", res.EstimatedUnits,
		"total_used", status.Used,
	)
	return true, nil
}

// Sweep expires reservations created more than the timeout before now and
// returns how many were dropped. Their estimates are not refunded.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.timeout)

	m.mu.Lock()
	var expired []Reservation
	for id, res := range m.pending {
		if res.CreatedAt.Before(cutoff) {
			expired = append(expired, res)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, res := range expired {
		m.logger.Warn("reservation abandoned, estimate stays charged",
			"reservation_id", res.ID,
			"identity", res.Identity,
			"estimated_units", res.EstimatedUnits,
			"age", now.Sub(res.CreatedAt).String(),
		)
	}
	return len(expired)
}

// Get returns an open reservation.
func (m *Manager) Get(reservationID string) (Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.pending[reservationID]
	return res, ok
}

// Pending returns the number of open reservations.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// claim removes an open reservation from the ledger.
func (m *Manager) claim(reservationID string) (Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.pending[reservationID]
	if ok {
		delete(m.pending, reservationID)
	}
	return res, ok
}

// restore puts back a claimed reservation whose settlement failed so the
// caller can retry.
func (m *Manager) restore(res Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[res.ID] = res
}

func (m *Manager) settle(ctx context.Context, res Reservation, delta int64) (budget.Status, error) {
	if delta == 0 {
		return m.tracker.Usage(ctx, res.Identity)
	}
	return m.tracker.Adjust(ctx, res.Identity, delta)
}
