// Package metrics holds the Prometheus collectors shared by the extractor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts upstream calls by identity and outcome: the
	// classified outcomes success, empty, retriable, token_expired and fatal,
	// error for transport failures, and rejected for calls refused by the
	// open circuit breaker.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_api_requests_total",
			Help: "Total number of LMS API requests by outcome",
		},
		[]string{"identity", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lms_api_request_duration_seconds",
			Help:    "LMS API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"identity"},
	)

	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_token_exchanges_total",
			Help: "Total number of client-credentials exchanges",
		},
		[]string{"identity", "result"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lms_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_records_emitted_total",
			Help: "Total number of records emitted per stream",
		},
		[]string{"stream"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_sync_errors_total",
			Help: "Total number of stream sync errors",
		},
		[]string{"stream", "kind"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lms_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	LastSuccessfulSync = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lms_sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last sync run without errors",
		},
	)
)
