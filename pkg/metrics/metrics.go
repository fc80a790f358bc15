// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages appended to the session log.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total chat messages persisted",
		},
		[]string{"sender"},
	)

	// HandoffsTotal tracks sessions transferred to a human.
	HandoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_handoffs_total",
			Help: "Total human hand-offs requested",
		},
		[]string{"origin"},
	)

	// ReclaimsTotal tracks sessions returned to automated response.
	ReclaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_reclaims_total",
			Help: "Total sessions reclaimed for automated response",
		},
		[]string{"path"},
	)

	// ResponderLatency tracks wall-clock time of responder calls.
	ResponderLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_responder_latency_seconds",
			Help:    "Automated responder call duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// SweepDuration tracks reclaimer sweep duration.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_sweep_duration_seconds",
			Help:    "Timeout reclaimer sweep duration",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5},
		},
	)

	// PendingHandoffs tracks sessions currently waiting for a human.
	PendingHandoffs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_pending_handoffs",
			Help: "Sessions currently awaiting a human agent",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMessage records one persisted chat message.
func RecordMessage(sender string) {
	MessagesTotal.WithLabelValues(sender).Inc()
}

// RecordReclaim records one session reclaim, by path ("lazy" or "sweep").
func RecordReclaim(path string) {
	ReclaimsTotal.WithLabelValues(path).Inc()
}
