package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "uploads_total",
		Help:      "Images received by the gateway, by flow and outcome",
	}, []string{"flow", "outcome"})

	Identifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "identifications_total",
		Help:      "Resolved identities by result (matched, unknown, no_match)",
	}, []string{"result"})

	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "backend_call_duration_seconds",
		Help:      "Duration of calls to external backends",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"backend", "op"})

	DroppedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "dropped_errors_total",
		Help:      "Errors recovered locally instead of failing the caller",
	}, []string{"component", "kind"})

	EnrollmentsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "enrollments_indexed_total",
		Help:      "Enrollment events handled by the indexer, by state",
	}, []string{"state"})

	EnrollmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "enrollment_queue_depth",
		Help:      "Number of pending enrollment events",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

// DropError logs and counts an error that is recovered instead of returned.
func DropError(component, kind string, err error, attrs ...any) {
	DroppedErrors.WithLabelValues(component, kind).Inc()
	slog.Warn("recovered error", append([]any{"component", component, "kind", kind, "error", err}, attrs...)...)
}
