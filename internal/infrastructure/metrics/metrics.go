package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Trackgate metrics - using explicit registration
var (
	// Invocation counters
	InvocationsTotal *prometheus.CounterVec

	// Invocation duration histogram
	InvocationDuration *prometheus.HistogramVec

	// Idempotent replays served without re-execution
	IdempotencyReplaysTotal *prometheus.CounterVec

	// Rate limiter rejections per action class
	RateLimitRejectionsTotal *prometheus.CounterVec

	// External platform calls
	AdapterCallsTotal *prometheus.CounterVec

	// External platform latency
	AdapterLatency *prometheus.HistogramVec

	// Audit write outcomes
	AuditWritesTotal *prometheus.CounterVec

	// Query template renders
	QueryRendersTotal *prometheus.CounterVec
)

// init creates and registers all metrics with the default registry
func init() {
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackgate",
			Subsystem: "pipeline",
			Name:      "invocations_total",
			Help:      "Total governed invocations",
		},
		[]string{"action", "outcome"},
	)

	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackgate",
			Subsystem: "pipeline",
			Name:      "invocation_duration_seconds",
			Help:      "Invocation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"action"},
	)

	IdempotencyReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackgate",
			Subsystem: "pipeline",
			Name:      "idempotency_replays_total",
			Help:      "Invocations answered from a stored idempotency record",
		},
		[]string{"action"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackgate",
			Subsystem: "pipeline",
			Name:      "rate_limit_rejections_total",
			Help:      "Invocations rejected by the rate limiter",
		},
		[]string{"action_class"},
	)

	AdapterCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackgate",
			Subsystem: "connector",
			Name:      "adapter_calls_total",
			Help:      "External platform calls",
		},
		[]string{"platform", "capability", "status"},
	)

	AdapterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackgate",
			Subsystem: "connector",
			Name:      "adapter_latency_seconds",
			Help:      "External platform response time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"platform"},
	)

	AuditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackgate",
			Subsystem: "audit",
			Name:      "writes_total",
			Help:      "Audit entry write attempts",
		},
		[]string{"status"},
	)

	QueryRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackgate",
			Subsystem: "query",
			Name:      "renders_total",
			Help:      "Query template render attempts",
		},
		[]string{"template", "status"},
	)

	prometheus.MustRegister(InvocationsTotal)
	prometheus.MustRegister(InvocationDuration)
	prometheus.MustRegister(IdempotencyReplaysTotal)
	prometheus.MustRegister(RateLimitRejectionsTotal)
	prometheus.MustRegister(AdapterCallsTotal)
	prometheus.MustRegister(AdapterLatency)
	prometheus.MustRegister(AuditWritesTotal)
	prometheus.MustRegister(QueryRendersTotal)
}
