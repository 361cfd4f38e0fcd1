package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/54b3r/paperqa-go/internal/answer"
	"github.com/54b3r/paperqa-go/internal/config"
	"github.com/54b3r/paperqa-go/internal/embedder"
	"github.com/54b3r/paperqa-go/internal/ingestion"
	"github.com/54b3r/paperqa-go/internal/prompt"
	"github.com/54b3r/paperqa-go/internal/provider"
	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/server"
	"github.com/54b3r/paperqa-go/internal/store"
)

// vectorsDir is the chromem database directory inside the index directory.
const vectorsDir = "vectors"

// indexStore is a vector store that can also be wiped by --rebuild.
type indexStore interface {
	rag.VectorStore
	ingestion.Resetter
}

// buildEmbedder resolves, validates and constructs the configured embedder.
func buildEmbedder(s *config.Settings, log *slog.Logger) (rag.Embedder, *embedder.Config, error) {
	cfg, err := embedder.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if err := embedder.Validate(cfg, log); err != nil {
		return nil, nil, err
	}
	emb, err := embedder.New(cfg, s.RetryPolicy())
	if err != nil {
		return nil, nil, err
	}
	log.Info("embedder initialised", slog.String("identity", cfg.Identity().String()))
	return emb, cfg, nil
}

// openVectorStore opens the configured backend. dims sizes a new Qdrant
// collection; chromem ignores it. The returned pinger probes the store for
// /api/ready.
func openVectorStore(ctx context.Context, s *config.Settings, dims int) (indexStore, server.Pinger, error) {
	switch s.VectorStore {
	case "qdrant":
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       s.QdrantHost,
			Port:       s.QdrantPort,
			Collection: s.Collection,
			VectorSize: uint64(dims),
			APIKey:     s.QdrantKey,
			UseTLS:     s.QdrantTLS,
		})
		if err != nil {
			return nil, nil, &rag.RetrievalError{Err: err}
		}
		return qs, server.NewQdrantPinger(qs.Client()), nil
	default:
		cs, err := rag.NewChromemStore(&rag.ChromemConfig{
			Path:       filepath.Join(s.IndexDir, vectorsDir),
			Collection: s.Collection,
		}, nil)
		if err != nil {
			return nil, nil, &rag.RetrievalError{Err: err}
		}
		return cs, server.NewFuncPinger("vectors", cs.Ping), nil
	}
}

// openManifest opens the SQLite manifest inside the index directory.
func openManifest(s *config.Settings) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(s.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	return store.Open(store.PathIn(s.IndexDir))
}

// queryStack is everything `serve` and `ask` need to answer questions.
type queryStack struct {
	service  *answer.Service
	store    indexStore
	manifest *store.SQLiteStore
	pingers  []server.Pinger
	provider *provider.Config
}

// Close releases the vector store and the manifest.
func (q *queryStack) Close() {
	if q.store != nil {
		_ = q.store.Close()
	}
	if q.manifest != nil {
		_ = q.manifest.Close()
	}
}

// buildQueryStack wires the answer service. It refuses to start when the
// index was built by a different embedding model.
func buildQueryStack(ctx context.Context, s *config.Settings, log *slog.Logger) (_ *queryStack, err error) {
	q := &queryStack{}
	defer func() {
		if err != nil {
			q.Close()
		}
	}()

	emb, embCfg, err := buildEmbedder(s, log)
	if err != nil {
		return nil, err
	}

	q.manifest, err = openManifest(s)
	if err != nil {
		return nil, err
	}
	dims := embCfg.Dimensions
	m, built, err := q.manifest.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	if built {
		if err := m.CheckEmbedder(embCfg.Backend, embCfg.Model, embCfg.Dimensions); err != nil {
			return nil, err
		}
		dims = m.Dimensions
	} else {
		log.Warn("index has no completed build, questions will fail until `paperqa index` succeeds",
			slog.String("index_dir", s.IndexDir),
		)
	}

	var storePinger server.Pinger
	q.store, storePinger, err = openVectorStore(ctx, s, dims)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(emb, q.store, &rag.RetrieverConfig{
		TopK:       s.TopK,
		Collection: s.Collection,
		Dimensions: dims,
		Unbuilt:    !built,
	})
	if err != nil {
		return nil, err
	}

	assembler, err := prompt.NewAssembler(s.MaxContextTokens)
	if err != nil {
		return nil, err
	}

	q.provider = provider.ConfigFromEnv()
	if err := q.provider.Validate(); err != nil {
		return nil, err
	}
	chatModel, err := provider.New(ctx, q.provider)
	if err != nil {
		return nil, fmt.Errorf("initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("identity", q.provider.Identity()))

	q.service, err = answer.NewService(retriever, assembler,
		provider.NewGenerator(chatModel, s.RetryPolicy(), q.provider.Identity()),
		&answer.Config{TopK: s.TopK, MinSimilarity: s.MinSimilarity},
	)
	if err != nil {
		return nil, err
	}

	q.pingers = []server.Pinger{storePinger, server.NewFuncPinger("manifest", q.manifest.Ping)}
	if p := server.NewLLMPinger(provider.NewHealthCheck(q.provider, nil), string(q.provider.Backend)); p != nil {
		q.pingers = append(q.pingers, p)
	}
	return q, nil
}
