package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the limits engine.
type Metrics struct {
	// Policy checks
	policyChecks *prometheus.CounterVec

	// Budget checks
	budgetChecks *prometheus.CounterVec

	// Reservations
	reservations  *prometheus.CounterVec
	unitsReserved prometheus.Counter
	unitsSettled  *prometheus.CounterVec

	// Sweeps
	sweepDeleted *prometheus.CounterVec

	// Store failures
	storeErrors *prometheus.CounterVec

	// Operation latency
	operationDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// pending reports the number of open reservations for the pending gauge.
func NewMetrics(reg prometheus.Registerer, pending func() float64) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		policyChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_policy_checks_total",
				Help: "Total number of rate limit policy checks performed",
			},
			[]string{"policy", "result"},
		),

		budgetChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_budget_checks_total",
				Help: "Total number of token budget checks performed",
			},
			[]string{"result"},
		),

		reservations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_reservations_total",
				Help: "Total number of token reservation outcomes",
			},
			[]string{"outcome"},
		),

		unitsReserved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gatekeeper_units_reserved_total",
				Help: "Total number of token units pre-charged by reservations",
			},
		),

		unitsSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_units_settled_total",
				Help: "Total number of token units refunded or charged on settlement",
			},
			[]string{"direction"},
		),

		sweepDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_sweep_deleted_total",
				Help: "Total number of items removed by sweeps",
			},
			[]string{"job"},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_store_errors_total",
				Help: "Total number of counter store failures",
			},
			[]string{"operation"},
		),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~330ms
			},
			[]string{"operation"},
		),
	}

	if pending != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "gatekeeper_reservations_pending",
				Help: "Current number of open token reservations",
			},
			pending,
		)
	}

	return m
}

// RecordPolicyCheck records a policy check.
func (m *Metrics) RecordPolicyCheck(policy string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.policyChecks.WithLabelValues(policy, result).Inc()
}

// RecordBudgetCheck records a budget check.
func (m *Metrics) RecordBudgetCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "exhausted"
	}
	m.budgetChecks.WithLabelValues(result).Inc()
}

// RecordReservation records a reservation outcome (reserved, rejected,
// completed, cancelled, not_found, expired).
func (m *Metrics) RecordReservation(outcome string, count int) {
	m.reservations.WithLabelValues(outcome).Add(float64(count))
}

// RecordUnitsReserved records units pre-charged by a reservation.
func (m *Metrics) RecordUnitsReserved(units int64) {
	m.unitsReserved.Add(float64(units))
}

// RecordSettlement records the units moved by a settlement.
// A positive adjusted value is a refund, a negative one an extra charge.
func (m *Metrics) RecordSettlement(adjusted int64) {
	switch {
	case adjusted > 0:
		m.unitsSettled.WithLabelValues("refunded").Add(float64(adjusted))
	case adjusted < 0:
		m.unitsSettled.WithLabelValues("charged").Add(float64(-adjusted))
	}
}

// RecordSweep records items removed by a sweep job.
func (m *Metrics) RecordSweep(job string, deleted int) {
	m.sweepDeleted.WithLabelValues(job).Add(float64(deleted))
}

// RecordStoreError records a counter store failure.
func (m *Metrics) RecordStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// RecordOperationDuration records the duration of an engine operation.
func (m *Metrics) RecordOperationDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}
