package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Source query outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Federated query results.
const (
	ResultOK        = "ok"
	ResultAborted   = "aborted"
	ResultAllFailed = "all_failed"
)

// Federation Prometheus metrics.
var (
	SourceQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "source_queries_total",
			Help:      "Per-source query tasks by outcome",
		},
		[]string{"source", "outcome"},
	)

	SourceQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fedcat",
			Name:      "source_query_duration_seconds",
			Help:      "Per-source query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source", "outcome"},
	)

	FederatedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "federated_queries_total",
			Help:      "Federated queries by result",
		},
		[]string{"result"},
	)

	OffsetCorrectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "offset_corrections_total",
			Help:      "Federated queries that needed per-source over-fetch",
		},
	)

	DuplicateSourcesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "duplicate_sources_total",
			Help:      "Sources skipped because their ID was already dispatched",
		},
	)

	PluginErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "plugin_errors_total",
			Help:      "Plugin failures by stage",
		},
		[]string{"stage"}, // "pre" / "post"
	)

	AuditedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "audited_queries_total",
			Help:      "Federated queries recorded by the audit plugin",
		},
		[]string{"enterprise"},
	)

	AccessDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fedcat",
			Name:      "access_denied_total",
			Help:      "Federated queries stopped by source access rules",
		},
		[]string{"source"},
	)
)

var registerFederationOnce sync.Once

// RegisterFederationMetrics registers federation metrics. Safe to call more than once.
func RegisterFederationMetrics() {
	registerFederationOnce.Do(func() {
		prometheus.MustRegister(
			SourceQueriesTotal,
			SourceQueryDuration,
			FederatedQueriesTotal,
			OffsetCorrectionsTotal,
			DuplicateSourcesTotal,
			PluginErrorsTotal,
			AuditedQueriesTotal,
			AccessDeniedTotal,
		)
	})
}

// PoolStats exposes worker pool occupancy.
type PoolStats interface {
	Running() int
	Free() int
	Cap() int
}

// RegisterPoolMetrics exposes worker pool gauges read at scrape time.
func RegisterPoolMetrics(p PoolStats) {
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fedcat",
			Name:      "pool_running_tasks",
			Help:      "Tasks currently running on the worker pool",
		}, func() float64 { return float64(p.Running()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fedcat",
			Name:      "pool_free_slots",
			Help:      "Idle worker pool slots",
		}, func() float64 { return float64(p.Free()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fedcat",
			Name:      "pool_capacity",
			Help:      "Worker pool capacity",
		}, func() float64 { return float64(p.Cap()) }),
	)
}
