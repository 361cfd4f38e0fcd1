package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewRetriever_NilDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, &memStore{}, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(&hashEmbedder{dims: 8}, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	t.Parallel()

	emb := &hashEmbedder{dims: 8}
	r, err := NewRetriever(emb, &memStore{count: 0}, &RetrieverConfig{Collection: "ai_papers"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Retrieve(context.Background(), "what is attention?", 3)
	var empty *EmptyIndexError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyIndexError, got %v", err)
	}
	if empty.Collection != "ai_papers" {
		t.Errorf("collection: got %q", empty.Collection)
	}
	if emb.calls != 0 {
		t.Errorf("embedder should not be called for an empty index, got %d calls", emb.calls)
	}
	if !IsUnavailable(err) {
		t.Error("EmptyIndexError should map to unavailable")
	}
}

func TestRetrieve_UnbuiltIndexIsNeverServed(t *testing.T) {
	t.Parallel()

	emb := &hashEmbedder{dims: 8}
	store := &memStore{count: 500, results: []ScoredChunk{{Chunk: Chunk{ID: "partial"}, Score: 0.9}}}
	r, err := NewRetriever(emb, store, &RetrieverConfig{Collection: "ai_papers", Unbuilt: true})
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Retrieve(context.Background(), "what is attention?", 3)
	var empty *EmptyIndexError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyIndexError, got %v (results %+v)", err, got)
	}
	if !empty.Unfinished {
		t.Error("expected the error to report an unfinished build")
	}
	if !strings.Contains(err.Error(), "paperqa index") {
		t.Errorf("error should tell the operator to run the indexer: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder should not be called, got %d calls", emb.calls)
	}
}

func TestRetrieve_StoreUnreachable(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(&hashEmbedder{dims: 8}, &memStore{countErr: errors.New("connection refused")}, nil)

	_, err := r.Retrieve(context.Background(), "q", 3)
	var re *RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetrievalError, got %v", err)
	}
}

func TestRetrieve_EmbedFailureIsProviderUnavailable(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(&hashEmbedder{dims: 8, err: errors.New("dial tcp: timeout")}, &memStore{count: 4}, nil)

	_, err := r.Retrieve(context.Background(), "q", 3)
	var pu *ProviderUnavailableError
	if !errors.As(err, &pu) {
		t.Fatalf("expected ProviderUnavailableError, got %v", err)
	}
	if pu.Provider != "embedding" {
		t.Errorf("provider: got %q, want embedding", pu.Provider)
	}
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	t.Parallel()

	r, _ := NewRetriever(&hashEmbedder{dims: 8}, &memStore{count: 4}, &RetrieverConfig{Dimensions: 384})

	_, err := r.Retrieve(context.Background(), "q", 3)
	var ii *IncompatibleIndexError
	if !errors.As(err, &ii) {
		t.Fatalf("expected IncompatibleIndexError, got %v", err)
	}
}

func TestRetrieve_OrderAndTieBreak(t *testing.T) {
	t.Parallel()

	store := &memStore{
		count: 10,
		results: []ScoredChunk{
			{Chunk: Chunk{ID: "c", Seq: 7}, Score: 0.5},
			{Chunk: Chunk{ID: "b", Seq: 9}, Score: 0.9},
			{Chunk: Chunk{ID: "a", Seq: 2}, Score: 0.9},
			{Chunk: Chunk{ID: "d", Seq: 1}, Score: 0.1},
		},
	}
	r, _ := NewRetriever(&hashEmbedder{dims: 8}, store, nil)

	got, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("result[%d]: got %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestRetrieve_WidensSearchAcrossBoundaryTies(t *testing.T) {
	t.Parallel()

	store := &tiedStore{count: 20}
	r, _ := NewRetriever(&hashEmbedder{dims: 8}, store, nil)

	got, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range got {
		if c.Seq != i {
			t.Errorf("result[%d]: got seq %d, want %d", i, c.Seq, i)
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if last := store.searches[len(store.searches)-1]; last != 20 {
		t.Errorf("expected the search to widen to the whole tied set, last request was %d", last)
	}
}

func TestRetrieve_TopKClampedToCount(t *testing.T) {
	t.Parallel()

	store := &memStore{count: 2}
	r, _ := NewRetriever(&hashEmbedder{dims: 8}, store, &RetrieverConfig{TopK: 30})

	if _, err := r.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastTopK != 2 {
		t.Errorf("expected search topK clamped to 2, got %d", store.lastTopK)
	}
}

func TestChunkMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	c := Chunk{ID: "id", DocID: "1706.03762.pdf", Title: "Attention Is All You Need", Text: "t", Index: 3, Offset: 450, Seq: 12}
	got := ChunkFromMetadata(c.ID, c.Text, c.Metadata())
	if got != c {
		t.Errorf("got %+v, want %+v", got, c)
	}
}
