package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/retry"
)

// Settings are the typed pipeline parameters shared by the indexer and the
// query service. They are read from the environment after Load and
// LoadDotEnv have filled it, so YAML and .env values are visible here.
type Settings struct {
	CorpusDir  string `env:"CORPUS_DIR" envDefault:"Papers"`
	TitlesFile string `env:"TITLES_FILE" envDefault:"paper_titles.json"`
	IndexDir   string `env:"INDEX_DIR" envDefault:"index"`
	Collection string `env:"COLLECTION" envDefault:"ai_papers"`

	// VectorStore is "chromem" (embedded, on disk) or "qdrant".
	VectorStore string `env:"VECTOR_STORE" envDefault:"chromem"`

	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"3000"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"200"`

	EmbedBatchSize   int `env:"EMBED_BATCH_SIZE" envDefault:"64"`
	EmbedConcurrency int `env:"EMBED_CONCURRENCY" envDefault:"4"`
	UpsertBatchSize  int `env:"UPSERT_BATCH_SIZE" envDefault:"500"`

	TopK             int     `env:"TOP_K" envDefault:"30"`
	MaxContextTokens int     `env:"MAX_CONTEXT_TOKENS" envDefault:"4000"`
	MinSimilarity    float32 `env:"MIN_SIMILARITY" envDefault:"0"`

	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`
	ProviderMaxRetries int           `env:"PROVIDER_MAX_RETRIES" envDefault:"3"`
	ProviderRetryDelay time.Duration `env:"PROVIDER_RETRY_DELAY" envDefault:"500ms"`

	QdrantHost string `env:"QDRANT_HOST" envDefault:"localhost"`
	QdrantPort int    `env:"QDRANT_PORT" envDefault:"6334"`
	QdrantKey  string `env:"QDRANT_API_KEY"`
	QdrantTLS  bool   `env:"QDRANT_TLS"`

	ServerHost string        `env:"PAPERQA_HOST" envDefault:"127.0.0.1"`
	ServerPort int           `env:"PAPERQA_PORT" envDefault:"8000"`
	APIKey     string        `env:"PAPERQA_API_KEY"`
	RateLimit  float64       `env:"PAPERQA_RATE_LIMIT" envDefault:"2"`
	RateBurst  int           `env:"PAPERQA_RATE_BURST" envDefault:"5"`
	AskTimeout time.Duration `env:"PAPERQA_ASK_TIMEOUT" envDefault:"3m"`
}

// LoadSettings parses Settings from the environment and validates them.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("config: parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings that would otherwise fail deep inside the
// pipeline. Chunk size/overlap are validated again by the chunker itself.
func (s *Settings) Validate() error {
	switch {
	case s.ChunkSize <= 0:
		return &rag.ConfigurationError{Field: "CHUNK_SIZE", Reason: fmt.Sprintf("must be positive, got %d", s.ChunkSize)}
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return &rag.ConfigurationError{
			Field:  "CHUNK_OVERLAP",
			Reason: fmt.Sprintf("must be in [0, CHUNK_SIZE=%d), got %d", s.ChunkSize, s.ChunkOverlap),
		}
	case s.TopK <= 0:
		return &rag.ConfigurationError{Field: "TOP_K", Reason: fmt.Sprintf("must be positive, got %d", s.TopK)}
	case s.MaxContextTokens <= 0:
		return &rag.ConfigurationError{Field: "MAX_CONTEXT_TOKENS", Reason: fmt.Sprintf("must be positive, got %d", s.MaxContextTokens)}
	case s.MinSimilarity < -1 || s.MinSimilarity > 1:
		return &rag.ConfigurationError{Field: "MIN_SIMILARITY", Reason: fmt.Sprintf("must be in [-1, 1], got %g", s.MinSimilarity)}
	case s.EmbedBatchSize <= 0:
		return &rag.ConfigurationError{Field: "EMBED_BATCH_SIZE", Reason: "must be positive"}
	case s.EmbedConcurrency <= 0:
		return &rag.ConfigurationError{Field: "EMBED_CONCURRENCY", Reason: "must be positive"}
	case s.UpsertBatchSize <= 0:
		return &rag.ConfigurationError{Field: "UPSERT_BATCH_SIZE", Reason: "must be positive"}
	case s.ProviderMaxRetries < 0:
		return &rag.ConfigurationError{Field: "PROVIDER_MAX_RETRIES", Reason: "must not be negative"}
	case s.ProviderTimeout <= 0:
		return &rag.ConfigurationError{Field: "PROVIDER_TIMEOUT", Reason: "must be positive"}
	case s.VectorStore != "chromem" && s.VectorStore != "qdrant":
		return &rag.ConfigurationError{Field: "VECTOR_STORE", Reason: fmt.Sprintf("unknown backend %q, valid values: chromem, qdrant", s.VectorStore)}
	case s.Collection == "":
		return &rag.ConfigurationError{Field: "COLLECTION", Reason: "must not be empty"}
	case s.ServerPort <= 0 || s.ServerPort > 65535:
		return &rag.ConfigurationError{Field: "PAPERQA_PORT", Reason: fmt.Sprintf("must be a TCP port, got %d", s.ServerPort)}
	case s.RateLimit <= 0 || s.RateBurst <= 0:
		return &rag.ConfigurationError{Field: "PAPERQA_RATE_LIMIT", Reason: "rate and burst must be positive"}
	case s.AskTimeout <= 0:
		return &rag.ConfigurationError{Field: "PAPERQA_ASK_TIMEOUT", Reason: "must be positive"}
	}
	return nil
}

// RetryPolicy returns the provider retry policy these settings describe.
func (s *Settings) RetryPolicy() retry.Config {
	p := retry.DefaultConfig()
	p.MaxRetries = s.ProviderMaxRetries
	p.InitialDelay = s.ProviderRetryDelay
	p.Timeout = s.ProviderTimeout
	return p
}
