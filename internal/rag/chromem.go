package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig holds the settings for a local, disk-persisted chromem-go store.
type ChromemConfig struct {
	// Path is the directory the database is persisted to.
	Path string

	// Collection is the collection name (default: ai_papers).
	Collection string

	// Compress enables gzip compression of the persisted documents.
	Compress bool

	// Concurrency bounds the goroutines used by AddDocuments (default: NumCPU).
	Concurrency int
}

// ChromemStore implements VectorStore on a chromem-go persistent database.
// Similarity is cosine over normalized vectors.
type ChromemStore struct {
	// db is the persistent chromem database handle.
	db *chromem.DB

	// mu guards coll, which is swapped by Reset.
	mu sync.RWMutex

	// coll is the collection holding every indexed chunk.
	coll *chromem.Collection

	// embed adapts the configured Embedder for chromem's own embedding path.
	embed chromem.EmbeddingFunc

	// cfg holds the resolved configuration.
	cfg *ChromemConfig
}

// NewChromemStore opens (or creates) the persistent database at cfg.Path and
// the configured collection. embedder may be nil when every upsert carries
// precomputed embeddings.
func NewChromemStore(cfg *ChromemConfig, embedder Embedder) (*ChromemStore, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("chromem: path must not be empty")
	}
	if cfg.Collection == "" {
		cfg.Collection = "ai_papers"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", cfg.Path, err)
	}

	s := &ChromemStore{db: db, embed: embeddingFunc(embedder), cfg: cfg}
	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, s.embed)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %q: %w", cfg.Collection, err)
	}
	s.coll = coll
	return s, nil
}

// embeddingFunc adapts a batch Embedder to chromem's single-text EmbeddingFunc.
func embeddingFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if e == nil {
			return nil, errors.New("chromem: no embedder configured, embeddings must be precomputed")
		}
		vecs, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("chromem: expected 1 embedding, got %d", len(vecs))
		}
		return vecs[0], nil
	}
}

// collection returns the current collection under the read lock.
func (s *ChromemStore) collection() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll
}

// Upsert stores or replaces chunks keyed by ID. chromem keeps documents in a
// map keyed by ID, so re-adding an existing ID overwrites it in place.
func (s *ChromemStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chromem: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Metadata:  c.Metadata(),
			Embedding: embeddings[i],
			Content:   c.Text,
		})
	}

	if err := s.collection().AddDocuments(ctx, docs, s.cfg.Concurrency); err != nil {
		return fmt.Errorf("chromem: upsert failed: %w", err)
	}
	return nil
}

// Search returns up to topK chunks by cosine similarity. chromem rejects
// requests for more results than the collection holds, so topK is clamped.
func (s *ChromemStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error) {
	coll := s.collection()
	n := min(topK, coll.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := coll.QueryEmbedding(ctx, queryEmbedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: search failed: %w", err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		out = append(out, ScoredChunk{
			Chunk: ChunkFromMetadata(r.ID, r.Content, r.Metadata),
			Score: r.Similarity,
		})
	}
	return out, nil
}

// Count returns the number of chunks in the collection.
func (s *ChromemStore) Count(_ context.Context) (int, error) {
	return s.collection().Count(), nil
}

// Delete removes chunks by ID, skipping IDs that are not present.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	coll := s.collection()
	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := coll.GetByID(ctx, id); err == nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := coll.Delete(ctx, nil, nil, present...); err != nil {
		return fmt.Errorf("chromem: delete failed: %w", err)
	}
	return nil
}

// Reset drops the collection and recreates it empty.
func (s *ChromemStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.cfg.Collection); err != nil {
		return fmt.Errorf("chromem: drop collection %q: %w", s.cfg.Collection, err)
	}
	coll, err := s.db.CreateCollection(s.cfg.Collection, nil, s.embed)
	if err != nil {
		return fmt.Errorf("chromem: recreate collection %q: %w", s.cfg.Collection, err)
	}
	s.coll = coll
	return nil
}

// Ping reports whether the collection is readable.
func (s *ChromemStore) Ping(_ context.Context) error {
	if s.collection() == nil {
		return errors.New("chromem: collection not open")
	}
	return nil
}

// Close is a no-op: chromem persists every write as it happens.
func (s *ChromemStore) Close() error { return nil }
