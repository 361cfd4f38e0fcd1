package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint rather than raw path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// One instance is created in New so tests can inject a fresh registry.
type serverMetrics struct {
	// askRequestsTotal counts /api/ask requests by outcome: "ok", "invalid",
	// "timeout", "unavailable" or "error".
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records end-to-end question latency.
	askDurationSeconds *prometheus.HistogramVec

	// askChunksUsed records how many chunks made it into each prompt.
	askChunksUsed prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests from receipt to answer.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 180},
		}, []string{"outcome"}),

		askChunksUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Subsystem: "ask",
			Name:      "chunks_used",
			Help:      "Number of retrieved chunks included in each answered prompt.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 30, 50},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeAsk records one finished /api/ask request.
func (s *Server) observeAsk(outcome string, started time.Time, chunks int) {
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	if outcome == "ok" {
		s.metrics.askChunksUsed.Observe(float64(chunks))
	}
}
