package ingestion

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/paperqa-go/internal/chunker"
	"github.com/54b3r/paperqa-go/internal/embedder"
	"github.com/54b3r/paperqa-go/internal/loader"
	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/store"
)

// fakeEmbedder hashes character trigrams into a small vector.
type fakeEmbedder struct {
	err error

	mu      sync.Mutex
	calls   int
	batches []int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 16)
		for j := 0; j+3 <= len(t); j++ {
			h := fnv.New32a()
			_, _ = h.Write([]byte(t[j : j+3]))
			v[h.Sum32()%16]++
		}
		out[i] = v
	}
	return out, nil
}

type fixture struct {
	corpus   string
	index    string
	vectors  *rag.ChromemStore
	manifest *store.SQLiteStore
	emb      *fakeEmbedder
	cfg      *Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	f := &fixture{
		corpus: filepath.Join(root, "Papers"),
		index:  filepath.Join(root, "index"),
		emb:    &fakeEmbedder{},
	}
	require.NoError(t, os.MkdirAll(f.corpus, 0o755))

	var err error
	f.vectors, err = rag.NewChromemStore(&rag.ChromemConfig{Path: filepath.Join(f.index, "vectors")}, nil)
	require.NoError(t, err)

	f.manifest, err = store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.manifest.Close() })

	policy, err := chunker.New(100, 20)
	require.NoError(t, err)

	f.cfg = &Config{
		CorpusDir:   f.corpus,
		IndexDir:    f.index,
		Policy:      policy,
		Identity:    embedder.Identity{Provider: "fake", Model: "trigram", Dimensions: 16},
		Collection:  "ai_papers",
		VectorStore: "chromem",
		Titles:      loader.TitleMap{"a_attention.txt": {Title: "Attention Is All You Need"}},
	}
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.corpus, name), []byte(content), 0o644))
}

func (f *fixture) run(t *testing.T) (*Report, error) {
	t.Helper()
	cfg := *f.cfg
	p, err := NewPipeline(f.emb, f.vectors, f.manifest, &cfg)
	require.NoError(t, err)
	return p.Run(context.Background(), nil)
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRun_IndexesCorpus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))
	f.write(t, "02_deep_residual_learning.txt", strings.Repeat("b", 90))
	f.write(t, "empty.txt", "   ")

	report, err := f.run(t)
	require.NoError(t, err)

	// 300 chars at size 100 / overlap 20: starts 0, 80, 160, 240.
	assert.Equal(t, 5, report.Chunks)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, []string{"empty.txt"}, report.Skipped)
	assert.Equal(t, 5, f.count(t))

	ctx := context.Background()
	m, ok, err := f.manifest.Manifest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fake/trigram@16", m.Identity())
	assert.Equal(t, 100, m.ChunkSize)
	assert.Equal(t, 20, m.ChunkOverlap)

	doc, ok, err := f.manifest.Document(ctx, "02_deep_residual_learning.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Deep Residual Learning", doc.Title, "title falls back to the cleaned file name")

	run, _, err := f.manifest.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
}

func TestRun_ChunksCarryTitle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", "Self-attention relates positions of a single sequence.")

	_, err := f.run(t)
	require.NoError(t, err)

	vec, err := f.emb.Embed(context.Background(), []string{EnrichText("Attention Is All You Need", "Self-attention relates positions of a single sequence.")})
	require.NoError(t, err)

	res, err := f.vectors.Search(context.Background(), vec[0], 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Attention Is All You Need", res[0].Title)
	assert.Equal(t, "Self-attention relates positions of a single sequence.", res[0].Text, "stored text stays raw")
	assert.Equal(t, "a_attention.txt", res[0].DocID)
}

func TestRun_StoredChunksRespectChunkSize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("attention ", 60))

	_, err := f.run(t)
	require.NoError(t, err)

	vec, err := f.emb.Embed(context.Background(), []string{EnrichText("Attention Is All You Need", strings.Repeat("attention ", 10))})
	require.NoError(t, err)
	res, err := f.vectors.Search(context.Background(), vec[0], f.count(t))
	require.NoError(t, err)
	require.NotEmpty(t, res)
	for _, c := range res {
		assert.LessOrEqual(t, len([]rune(c.Text)), 100, "chunk %s exceeds the chunk size", c.ID)
		assert.False(t, strings.HasPrefix(c.Text, "Paper Title:"), "chunk %s stores the embedding prefix", c.ID)
	}
}

func TestRun_ReindexUnchangedKeepsCount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))
	f.write(t, "02_deep_residual_learning.txt", strings.Repeat("b", 90))

	_, err := f.run(t)
	require.NoError(t, err)
	first := f.count(t)

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, first, f.count(t))
	assert.Zero(t, report.Deleted)
}

func TestRun_RemovesStaleChunks(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))
	f.write(t, "02_deep_residual_learning.txt", strings.Repeat("b", 90))

	_, err := f.run(t)
	require.NoError(t, err)
	require.Equal(t, 5, f.count(t))

	// Shrink a to two chunks and remove b entirely.
	f.write(t, "a_attention.txt", strings.Repeat("a", 150))
	require.NoError(t, os.Remove(filepath.Join(f.corpus, "02_deep_residual_learning.txt")))

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Deleted)
	assert.Equal(t, 2, f.count(t))

	_, ok, err := f.manifest.Document(context.Background(), "02_deep_residual_learning.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_EmbedderFailureFailsFast(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))
	f.emb.err = &rag.ProviderUnavailableError{Provider: "embedding", Err: errors.New("connection refused")}

	_, err := f.run(t)
	var pu *rag.ProviderUnavailableError
	require.True(t, errors.As(err, &pu), "got %v", err)

	ctx := context.Background()
	_, ok, err := f.manifest.Manifest(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a failed first run must not record a manifest")

	run, _, err := f.manifest.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Contains(t, run.Error, "connection refused")
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", "text")

	require.NoError(t, os.MkdirAll(f.index, 0o755))
	held := flock.New(filepath.Join(f.index, LockFile))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = held.Unlock() }()

	_, err = f.run(t)
	require.ErrorIs(t, err, ErrIndexLocked)
	assert.Zero(t, f.emb.calls)
}

func TestRun_IdentityChangeRequiresRebuild(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))

	_, err := f.run(t)
	require.NoError(t, err)

	f.cfg.Identity = embedder.Identity{Provider: "fake", Model: "other", Dimensions: 16}
	_, err = f.run(t)
	var ie *rag.IncompatibleIndexError
	require.True(t, errors.As(err, &ie), "got %v", err)

	f.cfg.Rebuild = true
	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Chunks)
	assert.Equal(t, 4, f.count(t))

	m, _, err := f.manifest.Manifest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "other", m.Model)
}

func TestRun_ChunkPolicyChangeRequiresRebuild(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))

	_, err := f.run(t)
	require.NoError(t, err)

	f.cfg.Policy, err = chunker.New(200, 20)
	require.NoError(t, err)
	_, err = f.run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--rebuild")
}

func TestRun_BatchesEmbeddingsAndUpserts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.write(t, "a_attention.txt", strings.Repeat("a", 300))
	f.write(t, "02_deep_residual_learning.txt", strings.Repeat("b", 300))
	f.write(t, "03_bert.txt", strings.Repeat("c", 300))
	f.cfg.EmbedBatchSize = 3
	f.cfg.EmbedConcurrency = 2
	f.cfg.UpsertBatchSize = 5

	report, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Chunks)
	assert.Equal(t, 12, f.count(t))

	for _, n := range f.emb.batches {
		assert.LessOrEqual(t, n, 3)
	}
	total := 0
	for _, n := range f.emb.batches {
		total += n
	}
	assert.Equal(t, 12, total)
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := NewPipeline(nil, f.vectors, f.manifest, f.cfg)
	require.Error(t, err)
	_, err = NewPipeline(f.emb, nil, f.manifest, f.cfg)
	require.Error(t, err)
	_, err = NewPipeline(f.emb, f.vectors, nil, f.cfg)
	require.Error(t, err)
	_, err = NewPipeline(f.emb, f.vectors, f.manifest, &Config{CorpusDir: "x", IndexDir: "y"})
	require.Error(t, err)
}
