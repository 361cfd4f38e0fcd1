package embedder

import (
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/paperqa-go/internal/rag"
)

// knownChatModelFragments identifies chat/completion models which are NOT
// suitable for embedding.
var knownChatModelFragments = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"vicuna",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, fragment := range knownChatModelFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check run before the index is opened so operators
// get a clear error at startup rather than a failure on the first embed call.
// It rejects configurations that cannot work and warns about ones that
// probably will not.
func Validate(cfg *Config, log *slog.Logger) error {
	if cfg.Model == "" {
		return &rag.ConfigurationError{Field: "EMBEDDING_MODEL", Reason: "must not be empty"}
	}
	if cfg.Dimensions <= 0 {
		return &rag.ConfigurationError{Field: "EMBEDDING_DIMENSIONS", Reason: "must be positive"}
	}
	if cfg.Endpoint == "" {
		return &rag.ConfigurationError{Field: "EMBEDDING_ENDPOINT", Reason: "must not be empty"}
	}

	if os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Debug("embedder: EMBEDDING_PROVIDER not set, using resolved backend",
			slog.String("backend", cfg.Backend),
		)
	}

	if looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}

	return nil
}
