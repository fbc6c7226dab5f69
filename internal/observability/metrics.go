// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	FeedEventsReceived prometheus.Counter
	FeedReconnects     prometheus.Counter
	SnapshotsEnriched  prometheus.Counter
	FeedErrors         *prometheus.CounterVec

	// Provider metrics
	ProviderCalls     *prometheus.CounterVec
	ProviderLatency   *prometheus.HistogramVec
	ProviderTokens    *prometheus.CounterVec
	RateLimitDenials  *prometheus.CounterVec
	RateLimitRetries  *prometheus.CounterVec
	SyntheticFallback *prometheus.CounterVec

	// Pipeline metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	DecisionsTotal     *prometheus.CounterVec
	ConsensusProbDelta prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulEvaluation prometheus.Gauge
	LastFeedEvent            prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_scout"
	}

	return &Metrics{
		// Ingestion metrics
		FeedEventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_events_received_total",
			Help:      "Total number of launch feed events received",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_reconnects_total",
			Help:      "Total number of websocket feed reconnects",
		}),
		SnapshotsEnriched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "snapshots_enriched_total",
			Help:      "Total number of snapshots enriched with market data",
		}),
		FeedErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "feed_errors_total",
			Help:      "Total number of ingestion errors by type",
		}, []string{"error_type"}),

		// Provider metrics
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of AI provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "AI provider call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		ProviderTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "tokens_used_total",
			Help:      "Total number of completion tokens consumed",
		}, []string{"provider"}),
		RateLimitDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "denials_total",
			Help:      "Total number of local rate limit denials by service",
		}, []string{"service"}),
		RateLimitRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "retries_total",
			Help:      "Total number of rate-limited call retries by service",
		}, []string{"service"}),
		SyntheticFallback: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "synthetic_fallbacks_total",
			Help:      "Total number of synthetic responses substituted for failed providers",
		}, []string{"provider"}),

		// Pipeline metrics
		EvaluationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "evaluations_total",
			Help:      "Total number of token evaluations by status",
		}, []string{"status"}),
		EvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "evaluation_duration_seconds",
			Help:      "End-to-end evaluation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "decisions_total",
			Help:      "Total number of buy decisions by outcome and risk level",
		}, []string{"outcome", "risk_level"}),
		ConsensusProbDelta: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "prob_delta",
			Help:      "Probability disagreement between providers",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 1},
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulEvaluation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_evaluation_timestamp",
			Help:      "Unix timestamp of last successful evaluation",
		}),
		LastFeedEvent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_feed_event_timestamp",
			Help:      "Unix timestamp of last feed event received",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordProviderCall records one provider call with its outcome and latency.
func RecordProviderCall(provider, outcome string, seconds float64, tokens int) {
	DefaultMetrics.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	DefaultMetrics.ProviderLatency.WithLabelValues(provider).Observe(seconds)
	if tokens > 0 {
		DefaultMetrics.ProviderTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordRateLimitDenial increments the denial counter for a service.
func RecordRateLimitDenial(service string) {
	DefaultMetrics.RateLimitDenials.WithLabelValues(service).Inc()
}

// RecordRateLimitRetry increments the retry counter for a service.
func RecordRateLimitRetry(service string) {
	DefaultMetrics.RateLimitRetries.WithLabelValues(service).Inc()
}

// RecordSyntheticFallback records a synthetic consensus substitution.
func RecordSyntheticFallback(provider string) {
	DefaultMetrics.SyntheticFallback.WithLabelValues(provider).Inc()
}

// RecordConsensus observes the provider disagreement for one merge.
func RecordConsensus(probDelta float64) {
	DefaultMetrics.ConsensusProbDelta.Observe(probDelta)
}

// RecordEvaluation records one pipeline evaluation.
func RecordEvaluation(status string, seconds float64) {
	DefaultMetrics.EvaluationsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.EvaluationDuration.Observe(seconds)
}

// RecordDecision records a buy decision outcome.
func RecordDecision(buy bool, riskLevel string) {
	outcome := "skip"
	if buy {
		outcome = "buy"
	}
	DefaultMetrics.DecisionsTotal.WithLabelValues(outcome, riskLevel).Inc()
}

// RecordFeedEvent records one launch feed event.
func RecordFeedEvent() {
	DefaultMetrics.FeedEventsReceived.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
