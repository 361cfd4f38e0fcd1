package server

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/paperqa-go/internal/provider"
)

// LLMPinger probes the generation backend through its token-free health check.
type LLMPinger struct {
	// healthCheck is the backend's listing-endpoint probe.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "groq").
	name string
}

// NewLLMPinger constructs an LLMPinger. It returns nil when hc is nil, so
// callers can skip backends without a cheap probe.
func NewLLMPinger(hc provider.HealthCheckConfig, name string) *LLMPinger {
	if hc == nil {
		return nil
	}
	return &LLMPinger{healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.healthCheck.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// FuncPinger adapts a Ping method (the chromem store, the sqlite manifest)
// to the Pinger interface.
type FuncPinger struct {
	name string
	ping func(ctx context.Context) error
}

// NewFuncPinger labels ping with name.
func NewFuncPinger(name string, ping func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping calls the wrapped function.
func (p *FuncPinger) Ping(ctx context.Context) error { return p.ping(ctx) }

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
