// Package tracing wires the two trace sinks: Langfuse receives eino model
// callbacks (prompts, completions, token usage) and an optional OTLP
// exporter receives the OpenTelemetry spans emitted around each question.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultLangfuseHost is used when LANGFUSE_HOST is unset.
const defaultLangfuseHost = "https://cloud.langfuse.com"

// LangfuseConfig holds the Langfuse credentials.
type LangfuseConfig struct {
	Host      string
	PublicKey string
	SecretKey string
}

// LangfuseFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func LangfuseFromEnv() LangfuseConfig {
	return LangfuseConfig{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c LangfuseConfig) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// SetupLangfuse registers a Langfuse handler as a global eino callback.
// It returns a flush function that must run before exit, and false when
// Langfuse is not configured.
func SetupLangfuse(cfg LangfuseConfig) (func(), bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}
	host := cfg.Host
	if host == "" {
		host = defaultLangfuseHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}
