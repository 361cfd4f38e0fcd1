package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/54b3r/paperqa-go/internal/retry"
)

func TestNewHealthCheck_Groq(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	hc := NewHealthCheck(&Config{Backend: BackendGroq, Groq: ProviderGroq{APIKey: "gsk-test", BaseURL: srv.URL + "/openai/v1/"}}, srv.Client())
	if hc == nil {
		t.Fatal("NewHealthCheck returned nil for groq")
	}
	if err := hc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath != "/openai/v1/models" {
		t.Errorf("path = %q, want /openai/v1/models", gotPath)
	}
	if gotAuth != "Bearer gsk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestNewHealthCheck_OllamaStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	hc := NewHealthCheck(&Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL, Model: "llama3.1"}}, srv.Client())
	err := hc.HealthCheck(context.Background())

	var se *retry.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *retry.StatusError", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", se.Code)
	}
}

func TestNewHealthCheck_ArkHasNoProbe(t *testing.T) {
	t.Parallel()

	if hc := NewHealthCheck(&Config{Backend: BackendArk}, nil); hc != nil {
		t.Errorf("NewHealthCheck(ark) = %T, want nil", hc)
	}
}
