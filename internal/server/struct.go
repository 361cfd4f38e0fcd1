package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/paperqa-go/internal/answer"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover AskTimeout.
	WriteTimeout time.Duration
	// AskTimeout bounds one question end to end, retries included.
	// Defaults to 3 minutes.
	AskTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained rate allowed per IP on /api/ask
	// (requests/second). Defaults to 2 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 5 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/ask.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Version is reported in the OpenAPI document.
	Version string
}

// asker answers one question. *answer.Service satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, question string) (*answer.Answer, error)
}

// counter reports the number of indexed chunks for GET /api/health.
type counter interface {
	Count(ctx context.Context) (int, error)
}

// Server is the HTTP front end of the question-answering service.
type Server struct {
	// asker handles POST /api/ask.
	asker asker
	// store is counted by GET /api/health.
	store counter
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// docs is the serialized OpenAPI document.
	docs []byte
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the natural-language question, 1 to 500 characters.
	Question string `json:"question"`
}

// healthResponse is the JSON body for GET /api/health.
type healthResponse struct {
	Status       string `json:"status"`
	DatabaseDocs int    `json:"database_docs"`
	Error        string `json:"error,omitempty"`
}

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error string `json:"error"`
}
