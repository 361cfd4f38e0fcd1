package rag

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Test doubles shared by the rag package tests
// ---------------------------------------------------------------------------

// hashEmbedder is a deterministic bag-of-words embedder: every lower-cased
// word increments one of dims buckets. Identical texts map to identical vectors.
type hashEmbedder struct {
	dims int
	err  error

	mu    sync.Mutex
	calls int
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, h.dims)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			vec[int(f.Sum32())%h.dims]++
		}
		out[i] = vec
	}
	return out, nil
}

// memStore is an in-memory VectorStore returning canned search results.
type memStore struct {
	count     int
	countErr  error
	results   []ScoredChunk
	searchErr error
	lastTopK  int
}

func (m *memStore) Upsert(context.Context, []Chunk, [][]float32) error { return nil }

func (m *memStore) Search(_ context.Context, _ []float32, topK int) ([]ScoredChunk, error) {
	m.lastTopK = topK
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	out := make([]ScoredChunk, len(m.results))
	copy(out, m.results)
	return out, nil
}

func (m *memStore) Count(context.Context) (int, error) { return m.count, m.countErr }
func (m *memStore) Delete(context.Context, []string) error { return nil }
func (m *memStore) Close() error                            { return nil }

// tiedStore holds count chunks that all score the same and answers a search
// for n with the n highest sequences, the worst order a store may pick.
type tiedStore struct {
	count    int
	searches []int
}

func (s *tiedStore) Upsert(context.Context, []Chunk, [][]float32) error { return nil }

func (s *tiedStore) Search(_ context.Context, _ []float32, topK int) ([]ScoredChunk, error) {
	s.searches = append(s.searches, topK)
	out := make([]ScoredChunk, 0, topK)
	for seq := s.count - 1; seq >= 0 && len(out) < topK; seq-- {
		out = append(out, ScoredChunk{Chunk: Chunk{Seq: seq}, Score: 0.5})
	}
	return out, nil
}

func (s *tiedStore) Count(context.Context) (int, error) { return s.count, nil }
func (s *tiedStore) Delete(context.Context, []string) error { return nil }
func (s *tiedStore) Close() error                            { return nil }
