package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/54b3r/paperqa-go/internal/retry"
)

// HealthCheckConfig probes a generation backend without spending tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a cheap listing endpoint.
type httpHealthCheck struct {
	client  *http.Client
	url     string
	headers map[string]string
}

// HealthCheck returns nil when the endpoint answers 2xx.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return &retry.StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

// NewHealthCheck returns a token-free probe for the configured backend, or
// nil when the backend has no such endpoint (Ark).
func NewHealthCheck(cfg *Config, client *http.Client) HealthCheckConfig {
	if client == nil {
		client = http.DefaultClient
	}
	bearer := func(key string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + key}
	}

	switch cfg.Backend {
	case BackendGroq:
		base := cfg.Groq.BaseURL
		if base == "" {
			base = DefaultGroqBaseURL
		}
		return &httpHealthCheck{client: client, url: strings.TrimRight(base, "/") + "/models", headers: bearer(cfg.Groq.APIKey)}
	case BackendOpenAI:
		return &httpHealthCheck{client: client, url: "https://api.openai.com/v1/models", headers: bearer(cfg.OpenAI.APIKey)}
	case BackendAzure:
		u := strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + url.QueryEscape(cfg.AzureOpenAI.APIVersion)
		return &httpHealthCheck{client: client, url: u, headers: map[string]string{"api-key": cfg.AzureOpenAI.APIKey}}
	case BackendOllama:
		return &httpHealthCheck{client: client, url: strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags"}
	case BackendGemini:
		return &httpHealthCheck{
			client:  client,
			url:     "https://generativelanguage.googleapis.com/v1beta/models",
			headers: map[string]string{"x-goog-api-key": cfg.Gemini.APIKey},
		}
	}
	return nil
}
