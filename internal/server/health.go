package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/paperqa-go/internal/logging"
)

// probeTimeout is the maximum time allowed for each individual dependency
// probe during a readiness check.
const probeTimeout = 5 * time.Second

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping returns nil when the dependency is reachable, a descriptive error otherwise.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses
	// (e.g. "vectors", "manifest", "groq").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results in registration order.
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Probes run concurrently, each under
// probeTimeout; the response is 200 when all succeed and 503 otherwise.
// Unlike /api/health, which only reads the vector store, this endpoint also
// reaches the embedding and generation providers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			checks[i] = readyCheck{Name: p.Name(), OK: true}
			if err := p.Ping(ctx); err != nil {
				checks[i].OK = false
				checks[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
