// Package audit emits one structured log line when a CLI command starts and
// one when it finishes, recording the effective configuration so an operator
// can reconstruct how an index was built or a server was started.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// secretSuffixes mark environment variables whose values must never be logged.
var secretSuffixes = []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_TOKEN", "_PASSWORD"}

// auditKeys is the ordered list of env vars included in every start entry.
var auditKeys = []string{
	"CORPUS_DIR",
	"TITLES_FILE",
	"INDEX_DIR",
	"COLLECTION",
	"VECTOR_STORE",
	"CHUNK_SIZE",
	"CHUNK_OVERLAP",
	"TOP_K",
	"MAX_CONTEXT_TOKENS",
	"MODEL_PROVIDER",
	"GROQ_API_KEY",
	"GROQ_MODEL",
	"OPENAI_API_KEY",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_ENDPOINT",
	"OLLAMA_HOST",
	"ARK_API_KEY",
	"GOOGLE_API_KEY",
	"EMBEDDING_PROVIDER",
	"EMBEDDING_MODEL",
	"EMBEDDING_API_KEY",
	"QDRANT_HOST",
	"QDRANT_API_KEY",
	"PAPERQA_API_KEY",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"LOG_LEVEL",
}

// LogCommandStart records the command name, config file source and the
// sanitised environment.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, key := range auditKeys {
		attrs = append(attrs, slog.String(key, SanitiseKey(key, os.Getenv(key))))
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// LogCommandEnd records how the command finished.
func LogCommandEnd(ctx context.Context, log *slog.Logger, command string, started time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.Duration("elapsed", time.Since(started)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("status", "failed"), slog.String("error", err.Error()))
		log.LogAttrs(ctx, slog.LevelError, "audit: command end", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "ok"))
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command end", attrs...)
}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	for _, s := range secretSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// SanitiseKey returns "set" or "unset" for secret keys, or the value
// (or "unset") for everything else. Safe to use in log messages.
func SanitiseKey(key, value string) string {
	if IsSecret(key) {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns the config path with the home directory
// collapsed to "~", or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && home != "/" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
