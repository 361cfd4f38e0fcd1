// Package config provides layered configuration for paperqa.
// Precedence, lowest first: defaults, YAML file, .env file, process
// environment. The YAML layer and the .env layer only fill variables that are
// still unset, so an exported variable always wins.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. PAPERQA_CONFIG environment variable
//  3. ~/.paperqa/config.yaml
//  4. ./paperqa.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Corpus locates the papers and their title map.
	Corpus CorpusConfig `yaml:"corpus"`

	// Index configures chunking and the on-disk index.
	Index IndexConfig `yaml:"index"`

	// Retrieval configures the query-time pipeline.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Model configures the generation provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the alternate Qdrant vector store.
	Qdrant QdrantConfig `yaml:"qdrant"`

	Server ServerConfig `yaml:"server"`

	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse and OpenTelemetry export.
	Tracing TracingConfig `yaml:"tracing"`
}

// CorpusConfig holds the paper corpus location.
type CorpusConfig struct {
	Dir        string `yaml:"dir"`
	TitlesFile string `yaml:"titles_file"`
}

// IndexConfig holds indexing settings.
type IndexConfig struct {
	// Dir holds the vector data, the manifest and the lock file.
	Dir string `yaml:"dir"`
	// Collection is the vector store collection name.
	Collection string `yaml:"collection"`
	// VectorStore selects the backend: chromem or qdrant.
	VectorStore      string `yaml:"vector_store"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	EmbedBatchSize   int    `yaml:"embed_batch_size"`
	EmbedConcurrency int    `yaml:"embed_concurrency"`
}

// RetrievalConfig holds query-time settings.
type RetrievalConfig struct {
	TopK             int     `yaml:"top_k"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
	MinSimilarity    float32 `yaml:"min_similarity"`
}

// ModelConfig holds generation provider settings.
type ModelConfig struct {
	// Provider selects the backend: groq, openai, azure, ollama, ark, gemini.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds each provider attempt (e.g. "60s").
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	// RetryDelay is the initial backoff (e.g. "500ms").
	RetryDelay string `yaml:"retry_delay"`

	Groq   GroqConfig   `yaml:"groq"`
	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// GroqConfig holds Groq settings. Prefer env var GROQ_API_KEY for the key.
type GroqConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark settings.
type ArkConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var PAPERQA_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	LangfusePublicKey string `yaml:"langfuse_public_key"`
	LangfuseSecretKey string `yaml:"langfuse_secret_key"`
	LangfuseHost      string `yaml:"langfuse_host"`
	// OTLPEndpoint enables OpenTelemetry span export over gRPC.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"CORPUS_DIR", func(c *Config) string { return c.Corpus.Dir }},
	{"TITLES_FILE", func(c *Config) string { return c.Corpus.TitlesFile }},
	{"INDEX_DIR", func(c *Config) string { return c.Index.Dir }},
	{"COLLECTION", func(c *Config) string { return c.Index.Collection }},
	{"VECTOR_STORE", func(c *Config) string { return c.Index.VectorStore }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Index.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Index.ChunkOverlap) }},
	{"EMBED_BATCH_SIZE", func(c *Config) string { return intStr(c.Index.EmbedBatchSize) }},
	{"EMBED_CONCURRENCY", func(c *Config) string { return intStr(c.Index.EmbedConcurrency) }},
	{"TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"MIN_SIMILARITY", func(c *Config) string { return float32Str(c.Retrieval.MinSimilarity) }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"PROVIDER_TIMEOUT", func(c *Config) string { return c.Model.Timeout }},
	{"PROVIDER_MAX_RETRIES", func(c *Config) string { return intStr(c.Model.MaxRetries) }},
	{"PROVIDER_RETRY_DELAY", func(c *Config) string { return c.Model.RetryDelay }},
	{"GROQ_API_KEY", func(c *Config) string { return c.Model.Groq.APIKey }},
	{"GROQ_MODEL", func(c *Config) string { return c.Model.Groq.Model }},
	{"GROQ_BASE_URL", func(c *Config) string { return c.Model.Groq.BaseURL }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"PAPERQA_HOST", func(c *Config) string { return c.Server.Host }},
	{"PAPERQA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"PAPERQA_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.LangfusePublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.LangfuseSecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.LangfuseHost }},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config) string { return c.Tracing.OTLPEndpoint }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten.
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path, err := resolveConfigPath(explicitPath)
	if err != nil {
		return "", err
	}
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if _, set := os.LookupEnv(m.envKey); set {
			continue
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists. An
// explicit path that does not exist is an error; the implicit locations are
// optional.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("PAPERQA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".paperqa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if _, err := os.Stat("paperqa.yaml"); err == nil {
		return "paperqa.yaml", nil
	}

	return "", nil
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
