package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// RetrieverConfig holds the optional settings for a DefaultRetriever.
type RetrieverConfig struct {
	// TopK is the number of results returned when Retrieve is called with topK=0.
	// Defaults to 5.
	TopK int

	// Collection names the store collection in EmptyIndexError messages.
	Collection string

	// Dimensions is the embedding size recorded when the index was built.
	// When non-zero, query embeddings of a different size are rejected with
	// IncompatibleIndexError instead of being sent to the store.
	Dimensions int

	// Unbuilt is set when no indexing run has completed. Chunks left by a
	// failed first run are then never served: every Retrieve fails with
	// EmptyIndexError.
	Unbuilt bool
}

// DefaultRetriever implements the Retriever interface by combining an Embedder
// and a VectorStore. It embeds the query at retrieval time and delegates
// similarity search to the store.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// cfg holds the resolved retriever settings.
	cfg RetrieverConfig
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and VectorStore.
// cfg may be nil.
func NewRetriever(embedder Embedder, store VectorStore, cfg *RetrieverConfig) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	resolved := RetrieverConfig{}
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.TopK <= 0 {
		resolved.TopK = 5
	}
	return &DefaultRetriever{
		embedder: embedder,
		store:    store,
		cfg:      resolved,
	}, nil
}

// Retrieve embeds the query and returns up to topK chunks ordered by
// similarity descending, ties broken by insertion sequence.
// If topK is 0 the configured default is used.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	if count == 0 || r.cfg.Unbuilt {
		return nil, &EmptyIndexError{Collection: r.cfg.Collection, Unfinished: count > 0}
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		var pu *ProviderUnavailableError
		if errors.As(err, &pu) {
			return nil, err
		}
		return nil, &ProviderUnavailableError{Provider: "embedding", Err: err}
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, &ProviderUnavailableError{Provider: "embedding", Err: errors.New("embedder returned empty result for query")}
	}
	if r.cfg.Dimensions > 0 && len(embeddings[0]) != r.cfg.Dimensions {
		return nil, &IncompatibleIndexError{
			Indexed:    fmt.Sprintf("%d dimensions", r.cfg.Dimensions),
			Configured: fmt.Sprintf("%d dimensions", len(embeddings[0])),
		}
	}

	results, err := r.search(ctx, embeddings[0], topK, count)
	if err != nil {
		return nil, &RetrievalError{Err: err}
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// search fetches at least topK results, widening the request while the
// lowest fetched score still equals the k-th score. Stores order equal
// scores arbitrarily, so chunks tied at the boundary are only ranked by
// insertion sequence once every one of them has been fetched.
func (r *DefaultRetriever) search(ctx context.Context, query []float32, topK, count int) ([]ScoredChunk, error) {
	n := min(topK, count)
	for {
		results, err := r.store.Search(ctx, query, n)
		if err != nil {
			return nil, err
		}
		SortResults(results)
		if n >= count || len(results) < n {
			return results, nil
		}
		if results[len(results)-1].Score < results[topK-1].Score {
			return results, nil
		}
		n = min(n*2, count)
	}
}

// SortResults orders results by score descending, then by insertion sequence
// ascending so equal scores always rank the earlier-indexed chunk first.
func SortResults(results []ScoredChunk) {
	slices.SortStableFunc(results, func(a, b ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}
