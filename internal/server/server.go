// Package server implements the HTTP API that answers questions over the
// indexed paper corpus and serves the embedded web UI.
// The server is started by the `paperqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/paperqa-go/internal/logging"
	"github.com/54b3r/paperqa-go/internal/rag"
)

// maxBodyBytes caps the size of a POST /api/ask body.
const maxBodyBytes = 16 << 10

// New constructs a Server that answers with a and reports store's size on
// GET /api/health.
func New(a asker, store counter, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: answer service must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("server: vector store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 3 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.AskTimeout + 10*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	docs, err := openAPIDocument(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("server: build api docs: %w", err)
	}

	s := &Server{
		asker:   a,
		store:   store,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
		docs:    docs,
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stop

	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: PAPERQA_API_KEY is not set, /api/ask is unauthenticated")
	}

	ask := rl.middleware(authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleAsk)))

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", s.instrument("ask", ask))
	mux.Handle("POST /ask", s.instrument("ask", ask))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /api/docs", s.instrument("docs", http.HandlerFunc(s.handleDocs)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	mux.Handle("GET /{$}", s.instrument("ui", http.HandlerFunc(handleIndex)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      cors(requestLogger(cfg.Logger, mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask. The answer is returned as a single JSON
// document once generation completes.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	started := time.Now()

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.observeAsk("invalid", started, 0)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	ans, err := s.asker.Ask(ctx, req.Question)
	if err != nil {
		status, outcome := classify(ctx, err)
		s.observeAsk(outcome, started, 0)
		if status >= http.StatusInternalServerError {
			log.Error("ask failed", slog.String("outcome", outcome), slog.Any("error", err))
		} else {
			log.Info("ask rejected", slog.Any("error", err))
		}
		writeError(w, status, err.Error())
		return
	}

	s.observeAsk("ok", started, ans.ChunksUsed)
	writeJSON(w, http.StatusOK, ans)
}

// classify maps an answer error onto an HTTP status and a metrics outcome.
// A timeout is reported only when the request's own deadline expired; a
// single provider attempt timing out surfaces as unavailable.
func classify(ctx context.Context, err error) (int, string) {
	var malformed *rag.MalformedRequestError
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, "invalid"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case rag.IsUnavailable(err):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "error"
	}
}

// handleHealth handles GET /api/health. It reports the number of stored
// chunks and returns 503 when the vector store cannot be read.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn("health: count failed", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", DatabaseDocs: n})
}

// handleDocs serves the OpenAPI description of the API.
func (s *Server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.docs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
