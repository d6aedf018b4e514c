// Package metrics exposes Prometheus instrumentation for the counter
// engine: pool/retry/breaker behavior in the backing-store manager, per-
// strategy operation counts, and rollup cycle statistics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store (C3) metrics
	StoreCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_store_commands_total",
			Help: "Total number of backing-store commands by outcome",
		},
		[]string{"outcome"}, // success, slow, failure, circuit_open
	)

	StoreCommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tally_store_command_duration_seconds",
			Help:    "Time taken to execute a backing-store command",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_store_retries_total",
			Help: "Total number of backing-store command retries",
		},
	)

	StoreCircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tally_store_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Counter strategy (C5/C6/C7) metrics
	CounterOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_counter_operations_total",
			Help: "Total number of counter operations by strategy and operation",
		},
		[]string{"consistency", "operation"}, // add, add_and_get, get, clear
	)

	CounterIdempotentHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_counter_idempotent_hits_total",
			Help: "Total number of mutations skipped because an idempotency marker already existed",
		},
		[]string{"consistency"},
	)

	CounterOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tally_counter_operation_duration_seconds",
			Help:    "Duration of counter operations by strategy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"consistency", "operation"},
	)

	// Reconciliation (C7) metrics
	ReconciliationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_reconciliations_total",
			Help: "Total number of accurate-strategy reconciliation passes",
		},
	)

	ReconciliationFoldedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_reconciliation_folded_total",
			Help: "Total delta amount folded into snapshots during reconciliation",
		},
	)

	// Rollup (C8) metrics
	RollupCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_rollup_cycles_total",
			Help: "Total number of rollup cycles by outcome",
		},
		[]string{"outcome"}, // success, failure
	)

	RollupCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tally_rollup_cycle_duration_seconds",
			Help:    "Time taken for one rollup cycle over a namespace",
			Buckets: prometheus.DefBuckets,
		},
	)

	RollupCountersFoldedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_rollup_counters_folded_total",
			Help: "Total number of counters whose deltas were folded into total during rollup",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StoreCommandsTotal,
		StoreCommandDuration,
		StoreRetriesTotal,
		StoreCircuitBreakerState,
		CounterOperationsTotal,
		CounterIdempotentHitsTotal,
		CounterOperationDuration,
		ReconciliationsTotal,
		ReconciliationFoldedTotal,
		RollupCyclesTotal,
		RollupCycleDuration,
		RollupCountersFoldedTotal,
	)
}

// Handler returns the Prometheus HTTP handler for a host application to mount.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
