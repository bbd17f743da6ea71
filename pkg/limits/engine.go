package limits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"examforge/gatekeeper/pkg/limits/budget"
	"examforge/gatekeeper/pkg/limits/identity"
	"examforge/gatekeeper/pkg/limits/ratelimit"
	"examforge/gatekeeper/pkg/limits/reservation"
	"examforge/gatekeeper/pkg/limits/storage"
	"examforge/gatekeeper/pkg/limits/sweeper"
)

// Default sweep schedules.
const (
	DefaultReservationSweepSchedule = "@every 60s"
	DefaultCounterSweepSchedule     = "@every 5m"
)

const tracerName = "examforge/gatekeeper/pkg/limits"

// Config contains configuration for the engine.
type Config struct {
	// Backend is the counter store. The engine takes ownership and closes it
	// in Close. Required.
	Backend storage.Backend

	// DailyTokenLimit is the per-identity daily AI token budget.
	// Default: 2,000,000
	DailyTokenLimit int64

	// BudgetAlertThreshold flags budgets used beyond this fraction (0-1).
	BudgetAlertThreshold float64

	// TrustProxy enables forwarding headers in GetClientIP.
	TrustProxy bool

	// ReservationTimeout is how long a reservation may stay open.
	// Default: 5 minutes
	ReservationTimeout time.Duration

	// ReservationSweepSchedule and CounterSweepSchedule are cron schedules
	// for the background sweeps. Defaults: every 60s and every 5m.
	ReservationSweepSchedule string
	CounterSweepSchedule     string

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// Logger is the base logger. Default: slog.Default()
	Logger *slog.Logger

	// Registerer receives the engine metrics. Default: a private registry.
	Registerer prometheus.Registerer

	// TracerProvider creates the engine tracer. Default: the global provider.
	TracerProvider trace.TracerProvider
}

// Engine is the rate limiting and token budget engine.
//
// The Engine owns its counter store, reservation ledger and sweeper. Create
// it once with New, call Start to run the background sweeps and Close on
// shutdown.
type Engine struct {
	store        storage.Backend
	counters     *storage.Counters
	limiter      *ratelimit.Limiter
	tracker      *budget.Tracker
	reservations *reservation.Manager
	resolver     *identity.Resolver
	sweeper      *sweeper.Sweeper

	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time

	closeOnce sync.Once
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrConfigInvalid)
	}
	if cfg.DailyTokenLimit < 0 {
		return nil, fmt.Errorf("%w: daily token limit cannot be negative", ErrConfigInvalid)
	}
	if cfg.DailyTokenLimit == 0 {
		cfg.DailyTokenLimit = budget.DefaultDailyLimit
	}
	if cfg.ReservationSweepSchedule == "" {
		cfg.ReservationSweepSchedule = DefaultReservationSweepSchedule
	}
	if cfg.CounterSweepSchedule == "" {
		cfg.CounterSweepSchedule = DefaultCounterSweepSchedule
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	counters := storage.NewCounters(cfg.Backend, cfg.Clock)
	tracker := budget.NewTracker(counters, budget.Config{
		DailyLimit:     cfg.DailyTokenLimit,
		AlertThreshold: cfg.BudgetAlertThreshold,
	})

	e := &Engine{
		store:    cfg.Backend,
		counters: counters,
		limiter:  ratelimit.NewLimiter(counters),
		tracker:  tracker,
		reservations: reservation.NewManager(tracker, reservation.Config{
			Timeout: cfg.ReservationTimeout,
			Clock:   cfg.Clock,
			Logger:  cfg.Logger,
		}),
		resolver: identity.NewResolver(cfg.TrustProxy, cfg.Logger),
		tracer:   cfg.TracerProvider.Tracer(tracerName),
		logger:   cfg.Logger.With("component", "limits"),
		now:      cfg.Clock,
	}

	e.metrics = NewMetrics(cfg.Registerer, func() float64 {
		return float64(e.reservations.Pending())
	})

	e.sweeper = sweeper.New(cfg.Logger,
		sweeper.Job{
			Name:     "reservations",
			Schedule: cfg.ReservationSweepSchedule,
			Run: func(ctx context.Context) (int, error) {
				return e.SweepReservations(), nil
			},
		},
		sweeper.Job{
			Name:     "counters",
			Schedule: cfg.CounterSweepSchedule,
			Run:      e.SweepCounters,
		},
	)
	if err := e.sweeper.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	return e, nil
}

// Start runs the background sweeps until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	return e.sweeper.Start(ctx)
}

// Stop stops the background sweeps and waits for a running sweep to finish.
func (e *Engine) Stop() {
	e.sweeper.Stop()
}

// Close stops the sweeps and closes the counter store.
// Close is idempotent and safe to call multiple times.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.Stop()
		err = e.store.Close()
	})
	return err
}

// ============================================================================
// Rate limiting
// ============================================================================

// CheckRateLimit consumes one point for key under policy.
func (e *Engine) CheckRateLimit(ctx context.Context, key string, policy ratelimit.Policy) (result ratelimit.Result, err error) {
	ctx, end := e.begin(ctx, "check_rate_limit", attribute.String("policy", policy.Name))
	defer func() { end(err) }()

	if err := validateIdentity("key", key); err != nil {
		return ratelimit.Result{}, err
	}
	return e.checkKey(ctx, key, policy)
}

// CheckPolicy checks identity against the named policy.
func (e *Engine) CheckPolicy(ctx context.Context, name, id string) (ratelimit.Result, error) {
	policy, ok := ratelimit.Lookup(name)
	if !ok {
		return ratelimit.Result{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	if err := validateIdentity("identity", id); err != nil {
		return ratelimit.Result{}, err
	}

	ctx, end := e.begin(ctx, "check_rate_limit", attribute.String("policy", policy.Name))
	result, err := e.checkKey(ctx, policy.Key(id), policy)
	end(err)
	return result, err
}

// checkKey runs the limiter on an already validated key. The policy prefix
// may push a valid identity past the identity length limit.
func (e *Engine) checkKey(ctx context.Context, key string, policy ratelimit.Policy) (ratelimit.Result, error) {
	result, err := e.limiter.Check(ctx, key, policy)
	if err != nil {
		return ratelimit.Result{}, err
	}
	e.metrics.RecordPolicyCheck(policy.Name, result.Success)
	return result, nil
}

// CheckAuth checks identity (usually a client IP) against the auth policy.
func (e *Engine) CheckAuth(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.Auth.Name, id)
}

// CheckSignup checks identity against the signup policy.
func (e *Engine) CheckSignup(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.Signup.Name, id)
}

// CheckBatch checks identity against the batch policy.
func (e *Engine) CheckBatch(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.Batch.Name, id)
}

// CheckFeedback checks identity against the feedback policy.
func (e *Engine) CheckFeedback(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.Feedback.Name, id)
}

// CheckClassJoin checks identity against the class_join policy.
func (e *Engine) CheckClassJoin(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.ClassJoin.Name, id)
}

// CheckLiveSession checks identity against the live_session policy.
func (e *Engine) CheckLiveSession(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.LiveSession.Name, id)
}

// CheckAPI checks identity against the api policy.
func (e *Engine) CheckAPI(ctx context.Context, id string) (ratelimit.Result, error) {
	return e.CheckPolicy(ctx, ratelimit.API.Name, id)
}

// Policies returns the policy catalog.
func (e *Engine) Policies() []ratelimit.Policy {
	return ratelimit.Policies()
}

// ============================================================================
// Client identity
// ============================================================================

// GetClientIP returns the sanitized client address of r, or identity.Unknown.
func (e *Engine) GetClientIP(r *http.Request) string {
	return e.resolver.ClientIP(r)
}

// SetTrustProxy switches forwarding-header support on or off.
func (e *Engine) SetTrustProxy(trust bool) {
	if e.resolver.TrustProxy() != trust {
		e.logger.Info("trust proxy changed", "trust_proxy", trust)
	}
	e.resolver.SetTrustProxy(trust)
}

// TrustProxy reports whether forwarding headers are honored.
func (e *Engine) TrustProxy() bool {
	return e.resolver.TrustProxy()
}

// ============================================================================
// Token budget
// ============================================================================

// CheckAITokenBudget returns the budget status of identity.
func (e *Engine) CheckAITokenBudget(ctx context.Context, id string) (status budget.Status, err error) {
	ctx, end := e.begin(ctx, "check_budget")
	defer func() { end(err) }()

	if err := validateIdentity("identity", id); err != nil {
		return budget.Status{}, err
	}

	status, err = e.tracker.Check(ctx, id)
	if err != nil {
		return budget.Status{}, err
	}
	e.metrics.RecordBudgetCheck(status.Allowed)
	if status.AlertTriggered {
		e.logger.Warn("token budget alert threshold reached",
			"identity", id,
			"used", status.Used,
			"limit", status.Limit,
		)
	}
	return status, nil
}

// RecordAITokenUsage charges units to identity without a reservation.
func (e *Engine) RecordAITokenUsage(ctx context.Context, id string, units int64) (status budget.Status, err error) {
	ctx, end := e.begin(ctx, "record_usage")
	defer func() { end(err) }()

	if err := validateIdentity("identity", id); err != nil {
		return budget.Status{}, err
	}
	if err := validateUnits("units", units, true); err != nil {
		return budget.Status{}, err
	}

	return e.tracker.Record(ctx, id, units)
}

// GetAITokenUsage returns the budget status of identity without side effects.
func (e *Engine) GetAITokenUsage(ctx context.Context, id string) (status budget.Status, err error) {
	ctx, end := e.begin(ctx, "get_usage")
	defer func() { end(err) }()

	if err := validateIdentity("identity", id); err != nil {
		return budget.Status{}, err
	}
	return e.tracker.Usage(ctx, id)
}

// DailyTokenLimit returns the current daily token limit.
func (e *Engine) DailyTokenLimit() int64 {
	return e.tracker.DailyLimit()
}

// SetDailyTokenLimit changes the daily token limit for every identity.
func (e *Engine) SetDailyTokenLimit(limit int64) error {
	if err := validateUnits("daily_token_limit", limit, false); err != nil {
		return err
	}
	old := e.tracker.DailyLimit()
	if err := e.tracker.SetDailyLimit(limit); err != nil {
		return err
	}
	if old != limit {
		e.logger.Info("daily token limit changed", "old", old, "new", limit)
	}
	return nil
}

// ============================================================================
// Reservations
// ============================================================================

// ReserveAITokens pre-charges estimatedUnits to identity.
func (e *Engine) ReserveAITokens(ctx context.Context, id string, estimatedUnits int64) (result reservation.ReserveResult, err error) {
	ctx, end := e.begin(ctx, "reserve")
	defer func() { end(err) }()

	if err := validateIdentity("identity", id); err != nil {
		return reservation.ReserveResult{}, err
	}
	if err := validateUnits("estimated_units", estimatedUnits, false); err != nil {
		return reservation.ReserveResult{}, err
	}

	result, err = e.reservations.Reserve(ctx, id, estimatedUnits)
	if err != nil {
		return reservation.ReserveResult{}, err
	}

	if result.Success {
		e.metrics.RecordReservation("reserved", 1)
		e.metrics.RecordUnitsReserved(estimatedUnits)
	} else {
		e.metrics.RecordReservation("rejected", 1)
		e.logger.Info("token reservation rejected",
			"identity", id,
			"estimated_units", estimatedUnits,
			"remaining", result.Remaining,
			"shortfall", result.Shortfall,
		)
	}
	return result, nil
}

// CompleteTokenReservation settles a reservation with the actual usage.
func (e *Engine) CompleteTokenReservation(ctx context.Context, reservationID string, actualUnits int64) (result reservation.CompleteResult, err error) {
	ctx, end := e.begin(ctx, "complete", attribute.String("reservation_id", reservationID))
	defer func() { end(err) }()

	if err := validateUnits("actual_units", actualUnits, true); err != nil {
		return reservation.CompleteResult{}, err
	}

	result, err = e.reservations.Complete(ctx, reservationID, actualUnits)
	if err != nil {
		return reservation.CompleteResult{}, err
	}

	if result.Success {
		e.metrics.RecordReservation("completed", 1)
		e.metrics.RecordSettlement(result.Adjusted)
	} else {
		e.metrics.RecordReservation("not_found", 1)
	}
	return result, nil
}

// CancelTokenReservation refunds an open reservation in full.
func (e *Engine) CancelTokenReservation(ctx context.Context, reservationID string) (ok bool, err error) {
	ctx, end := e.begin(ctx, "cancel", attribute.String("reservation_id", reservationID))
	defer func() { end(err) }()

	ok, err = e.reservations.Cancel(ctx, reservationID)
	if err != nil {
		return false, err
	}

	if ok {
		e.metrics.RecordReservation("cancelled", 1)
	} else {
		e.metrics.RecordReservation("not_found", 1)
	}
	return ok, nil
}

// ============================================================================
// Maintenance
// ============================================================================

// SweepReservations expires abandoned reservations without refund.
func (e *Engine) SweepReservations() int {
	n := e.reservations.Sweep(e.now())
	if n > 0 {
		e.metrics.RecordReservation("expired", n)
	}
	return n
}

// SweepCounters deletes counter rows whose window has ended.
func (e *Engine) SweepCounters(ctx context.Context) (deleted int, err error) {
	ctx, end := e.begin(ctx, "sweep_counters")
	defer func() { end(err) }()

	deleted, err = e.counters.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	e.metrics.RecordSweep("counters", deleted)
	return deleted, nil
}

// RunSweeps runs both sweeps once, outside their schedules.
func (e *Engine) RunSweeps(ctx context.Context) (int, error) {
	return e.sweeper.RunOnce(ctx)
}

// PeekCounter returns the live counter stored under key, or nil.
func (e *Engine) PeekCounter(ctx context.Context, key string) (*storage.Record, error) {
	if err := validateIdentity("key", key); err != nil {
		return nil, err
	}
	return e.counters.Peek(ctx, key)
}

// PendingReservations returns the number of open reservations.
func (e *Engine) PendingReservations() int {
	return e.reservations.Pending()
}

// healthProbeKey is read by Ping. It is never written.
const healthProbeKey = "health:probe"

// Ping reports whether the counter store answers a read.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.counters.Peek(ctx, healthProbeKey)
	return err
}

// begin starts a span and latency measurement for op. The returned function
// ends both and records err.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "limits."+op, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		e.metrics.RecordOperationDuration(op, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if storage.ErrUnavailable.Has(err) || errors.Is(err, context.DeadlineExceeded) {
				e.metrics.RecordStoreError(op)
				e.logger.Error("counter store failure", "operation", op, "error", err)
			}
		}
		span.End()
	}
}
