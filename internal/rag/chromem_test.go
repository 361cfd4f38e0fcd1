package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
)

// openChromem opens a persistent store in a fresh temp directory.
func openChromem(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(&ChromemConfig{Path: filepath.Join(t.TempDir(), "vectors"), Collection: "test"}, nil)
	if err != nil {
		t.Fatalf("open chromem store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// sampleChunks returns chunks with distinct vocabularies so their hash
// embeddings never collide.
func sampleChunks() []Chunk {
	texts := []string{
		"attention heads weigh every token against every other token",
		"convolutional filters slide across image patches",
		"reinforcement learning agents maximise discounted reward",
		"dropout randomly zeroes activations during training",
	}
	out := make([]Chunk, len(texts))
	for i, txt := range texts {
		out[i] = Chunk{
			ID:    fmt.Sprintf("00000000-0000-0000-0000-%012d", i),
			DocID: "paper.pdf",
			Title: "Paper",
			Text:  txt,
			Index: i,
			Seq:   i,
		}
	}
	return out
}

func embedAll(t *testing.T, e Embedder, chunks []Chunk) [][]float32 {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	return vecs
}

func Test_Chromem_UpsertIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openChromem(t)
	ctx := context.Background()
	emb := &hashEmbedder{dims: 64}

	chunks := sampleChunks()
	vecs := embedAll(t, emb, chunks)

	for range 2 {
		if err := s.Upsert(ctx, chunks, vecs); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(chunks) {
		t.Errorf("want %d chunks after re-upsert, got %d", len(chunks), n)
	}
}

func Test_Chromem_SelfSimilarityRanksFirst(t *testing.T) {
	t.Parallel()
	s := openChromem(t)
	ctx := context.Background()
	emb := &hashEmbedder{dims: 64}

	chunks := sampleChunks()
	if err := s.Upsert(ctx, chunks, embedAll(t, emb, chunks)); err != nil {
		t.Fatal(err)
	}

	r, err := NewRetriever(emb, s, &RetrieverConfig{TopK: 3})
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range chunks {
		got, err := r.Retrieve(ctx, c.Text, 3)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(got) == 0 || got[0].ID != c.ID {
			t.Errorf("query %q: expected %s first, got %+v", c.Text, c.ID, got)
			continue
		}
		if got[0].Title != "Paper" || got[0].Index != c.Index {
			t.Errorf("metadata not restored: %+v", got[0].Chunk)
		}
	}
}

func Test_Chromem_SearchClampsTopK(t *testing.T) {
	t.Parallel()
	s := openChromem(t)
	ctx := context.Background()
	emb := &hashEmbedder{dims: 64}

	chunks := sampleChunks()[:2]
	if err := s.Upsert(ctx, chunks, embedAll(t, emb, chunks)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Search(ctx, embedAll(t, emb, chunks[:1])[0], 30)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("want 2 results, got %d", len(got))
	}
}

func Test_Chromem_DeleteAndReset(t *testing.T) {
	t.Parallel()
	s := openChromem(t)
	ctx := context.Background()
	emb := &hashEmbedder{dims: 64}

	chunks := sampleChunks()
	if err := s.Upsert(ctx, chunks, embedAll(t, emb, chunks)); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, []string{chunks[0].ID, "missing"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.Count(ctx); n != len(chunks)-1 {
		t.Errorf("want %d after delete, got %d", len(chunks)-1, n)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("want empty collection after reset, got %d", n)
	}
}

func Test_Chromem_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectors")
	emb := &hashEmbedder{dims: 64}

	s1, err := NewChromemStore(&ChromemConfig{Path: dir, Collection: "test"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	chunks := sampleChunks()
	if err := s1.Upsert(ctx, chunks, embedAll(t, emb, chunks)); err != nil {
		t.Fatal(err)
	}
	_ = s1.Close()

	s2, err := NewChromemStore(&ChromemConfig{Path: dir, Collection: "test"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := s2.Count(ctx); n != len(chunks) {
		t.Errorf("want %d chunks after reopen, got %d", len(chunks), n)
	}
}

func Test_Chromem_TiesRankByInsertionOrder(t *testing.T) {
	t.Parallel()
	s := openChromem(t)
	ctx := context.Background()
	emb := &hashEmbedder{dims: 64}

	vec := embedAll(t, emb, []Chunk{{Text: "identical passage"}})[0]
	chunks := make([]Chunk, 50)
	vecs := make([][]float32, len(chunks))
	for i := range chunks {
		chunks[i] = Chunk{
			ID:    fmt.Sprintf("00000000-0000-0000-0001-%012d", i),
			DocID: "dup.pdf",
			Text:  fmt.Sprintf("copy %d", i),
			Index: i,
			Seq:   i,
		}
		vecs[i] = slices.Clone(vec)
	}
	if err := s.Upsert(ctx, chunks, vecs); err != nil {
		t.Fatal(err)
	}

	r, err := NewRetriever(emb, s, nil)
	if err != nil {
		t.Fatal(err)
	}
	for trial := range 10 {
		got, err := r.Retrieve(ctx, "identical passage", 3)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		seqs := make([]int, len(got))
		for i, c := range got {
			seqs[i] = c.Seq
		}
		if !slices.Equal(seqs, []int{0, 1, 2}) {
			t.Fatalf("trial %d: top-3 seqs = %v, want [0 1 2]", trial, seqs)
		}
	}
}
