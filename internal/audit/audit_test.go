package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func TestIsSecret(t *testing.T) {
	t.Parallel()

	secret := []string{"GROQ_API_KEY", "PAPERQA_API_KEY", "LANGFUSE_SECRET_KEY", "LANGFUSE_PUBLIC_KEY", "AWS_SESSION_TOKEN"}
	plain := []string{"MODEL_PROVIDER", "CHUNK_SIZE", "QDRANT_HOST", "EMBEDDING_MODEL"}

	for _, k := range secret {
		if !IsSecret(k) {
			t.Errorf("IsSecret(%q) = false, want true", k)
		}
	}
	for _, k := range plain {
		if IsSecret(k) {
			t.Errorf("IsSecret(%q) = true, want false", k)
		}
	}
}

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	if got := SanitiseKey("GROQ_API_KEY", "gsk_abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("GROQ_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", "groq"); got != "groq" {
		t.Errorf("expected 'groq', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestLogCommandStart_NeverLogsSecretValues(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_super_secret")
	t.Setenv("CHUNK_SIZE", "3000")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	LogCommandStart(context.Background(), log, "index", "")

	out := buf.String()
	if strings.Contains(out, "gsk_super_secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	if !strings.Contains(out, "GROQ_API_KEY=set") {
		t.Errorf("expected presence marker for GROQ_API_KEY: %s", out)
	}
	if !strings.Contains(out, "CHUNK_SIZE=3000") {
		t.Errorf("expected CHUNK_SIZE value: %s", out)
	}
	if !strings.Contains(out, "config_file=none") {
		t.Errorf("expected config_file=none: %s", out)
	}
}

func TestLogCommandEnd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	LogCommandEnd(context.Background(), log, "index", time.Now(), errors.New("embedding provider unavailable"))
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status=failed") {
		t.Errorf("failed command not logged at error level: %s", out)
	}

	buf.Reset()
	LogCommandEnd(context.Background(), log, "index", time.Now(), nil)
	if out := buf.String(); !strings.Contains(out, "status=ok") {
		t.Errorf("expected status=ok: %s", out)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()

	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/etc/paperqa.yaml"); got != "/etc/paperqa.yaml" {
		t.Errorf("expected '/etc/paperqa.yaml', got %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		p := home + "/.paperqa/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.paperqa/config.yaml" {
			t.Errorf("expected '~/.paperqa/config.yaml', got %q", got)
		}
	}
}
