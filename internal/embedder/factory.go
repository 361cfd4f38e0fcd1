package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/retry"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
)

// Identity names the embedding model an index was built with. Two identities
// that differ in any field produce vectors that cannot be compared.
type Identity struct {
	Provider   string
	Model      string
	Dimensions int
}

// String renders the identity as provider/model@dims.
func (i Identity) String() string {
	return fmt.Sprintf("%s/%s@%d", i.Provider, i.Model, i.Dimensions)
}

// Config is the resolved embedding backend configuration.
type Config struct {
	// Backend is one of "ollama", "openai" or "azure".
	Backend string
	// Endpoint is the server base URL. Ollama: host root; OpenAI: API base;
	// Azure: resource endpoint.
	Endpoint string
	// APIKey authenticates against openai and azure. Unused by ollama.
	APIKey string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Dimensions is the expected vector length.
	Dimensions int
	// APIVersion is the Azure OpenAI api-version query parameter.
	APIVersion string
}

// Identity returns the model identity this configuration produces.
func (c *Config) Identity() Identity {
	return Identity{Provider: c.Backend, Model: c.Model, Dimensions: c.Dimensions}
}

// DefaultDimensions returns the default embedding vector size for the given
// backend. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves the embedding configuration using cascading
// defaults that inherit from the chat provider's credentials when
// embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER. If unset, MODEL_PROVIDER is inherited when it is an
//     embedding-capable backend (openai, azure, ollama); otherwise ollama.
//  2. Per-backend credentials are inherited from the chat provider's env vars.
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend.
//  4. EMBEDDING_API_KEY overrides the inherited API key.
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint.
//  6. EMBEDDING_DIMENSIONS overrides the default dimensions.
func ConfigFromEnv() (*Config, error) {
	backend := getEnv("EMBEDDING_PROVIDER")
	if backend == "" {
		switch mp := getEnv("MODEL_PROVIDER"); mp {
		case "openai", "azure", "ollama":
			backend = mp
		default:
			backend = "ollama"
		}
	}

	switch backend {
	case "ollama":
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return &Config{
			Backend:    backend,
			Endpoint:   endpoint,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
			Dimensions: DefaultDimensions(backend),
		}, nil

	case "openai":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, &rag.ConfigurationError{Field: "EMBEDDING_API_KEY", Reason: "openai embeddings require OPENAI_API_KEY or EMBEDDING_API_KEY"}
		}
		return &Config{
			Backend:    backend,
			Endpoint:   getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: DefaultDimensions(backend),
		}, nil

	case "azure":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, &rag.ConfigurationError{Field: "EMBEDDING_API_KEY", Reason: "azure embeddings require AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY"}
		}
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, &rag.ConfigurationError{Field: "EMBEDDING_ENDPOINT", Reason: "azure embeddings require AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT"}
		}
		return &Config{
			Backend:    backend,
			Endpoint:   endpoint,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: DefaultDimensions(backend),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}, nil

	default:
		return nil, &rag.ConfigurationError{
			Field:  "EMBEDDING_PROVIDER",
			Reason: fmt.Sprintf("unknown backend %q, valid values: ollama, openai, azure", backend),
		}
	}
}

// New constructs the embedder for cfg, wrapped with the given retry policy.
func New(cfg *Config, policy retry.Config) (rag.Embedder, error) {
	var base rag.Embedder
	switch cfg.Backend {
	case "ollama":
		base = NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model})
	case "openai":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "azure":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q", cfg.Backend)
	}
	return WithRetry(base, policy), nil
}

// NewFromEnv resolves the configuration from the environment and constructs
// the embedder. The resolved identity is returned so callers can record or
// check it against the index manifest.
func NewFromEnv(policy retry.Config) (rag.Embedder, Identity, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, Identity{}, err
	}
	emb, err := New(cfg, policy)
	if err != nil {
		return nil, Identity{}, err
	}
	return emb, cfg.Identity(), nil
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
