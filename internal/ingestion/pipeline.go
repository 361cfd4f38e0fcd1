// Package ingestion implements the offline indexing pipeline behind
// `paperqa index`. It walks the corpus directory, extracts each paper's text,
// splits it with the chunking policy, embeds the chunks in bounded-concurrency
// batches and upserts them into the vector store, recording what it built in
// the index manifest.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/paperqa-go/internal/chunker"
	"github.com/54b3r/paperqa-go/internal/embedder"
	"github.com/54b3r/paperqa-go/internal/loader"
	"github.com/54b3r/paperqa-go/internal/logging"
	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/store"
)

// ErrIndexLocked is returned when another indexing run holds the index lock.
var ErrIndexLocked = errors.New("ingestion: index is locked by another run")

// LockFile is the lock file name inside the index directory.
const LockFile = ".index.lock"

// Manifest is the subset of the index manifest the pipeline writes.
type Manifest interface {
	Manifest(ctx context.Context) (*store.Manifest, bool, error)
	SaveManifest(ctx context.Context, m *store.Manifest) error
	Document(ctx context.Context, docID string) (*store.Document, bool, error)
	Documents(ctx context.Context) ([]store.Document, error)
	PutDocument(ctx context.Context, d *store.Document) error
	DeleteDocument(ctx context.Context, docID string) error
	StartRun(ctx context.Context) (int64, error)
	FinishRun(ctx context.Context, id int64, documents, chunks int, runErr error) error
	Reset(ctx context.Context) error
}

// Resetter is implemented by vector stores that can drop every chunk.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// CorpusDir is the directory holding the papers.
	CorpusDir string

	// IndexDir holds the lock file. It is created if missing.
	IndexDir string

	// Titles maps file names to paper titles. May be nil.
	Titles loader.TitleMap

	// Policy is the validated chunking policy.
	Policy *chunker.Policy

	// Identity is the embedding model identity recorded in the manifest.
	Identity embedder.Identity

	// Collection and VectorStore are recorded in the manifest.
	Collection  string
	VectorStore string

	// EmbedBatchSize is the number of chunk texts per embedding request.
	// Defaults to 64.
	EmbedBatchSize int

	// EmbedConcurrency bounds the in-flight embedding requests. Defaults to 4.
	EmbedConcurrency int

	// UpsertBatchSize is the number of chunks written to the store at once.
	// Defaults to 500.
	UpsertBatchSize int

	// Rebuild drops the existing index before indexing.
	Rebuild bool
}

// Report summarises a completed run.
type Report struct {
	RunID     int64
	Documents int
	Skipped   []string
	Chunks    int
	// Deleted counts stale chunks removed from shrunk or vanished documents.
	Deleted int
	Elapsed time.Duration
}

// Pipeline orchestrates the load → chunk → embed → upsert flow for a corpus.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	manifest Manifest
	cfg      *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb rag.Embedder, vs rag.VectorStore, manifest Manifest, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if manifest == nil {
		return nil, fmt.Errorf("ingestion: manifest must not be nil")
	}
	if cfg == nil || cfg.Policy == nil {
		return nil, fmt.Errorf("ingestion: chunking policy must not be nil")
	}
	if cfg.CorpusDir == "" || cfg.IndexDir == "" {
		return nil, fmt.Errorf("ingestion: corpus and index directories must be set")
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 500
	}
	return &Pipeline{embedder: emb, store: vs, manifest: manifest, cfg: cfg}, nil
}

// Run indexes the whole corpus. It holds an exclusive lock on the index
// directory for its duration and returns ErrIndexLocked if another run holds
// it. The run is recorded in the manifest as completed or failed; the
// manifest's model identity is only written once every document is indexed.
// progress may be nil.
func (p *Pipeline) Run(ctx context.Context, progress func(msg string)) (report *Report, err error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)
	started := time.Now()

	if err := os.MkdirAll(p.cfg.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("ingestion: create index dir: %w", err)
	}
	lock := flock.New(filepath.Join(p.cfg.IndexDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ingestion: lock index: %w", err)
	}
	if !locked {
		return nil, ErrIndexLocked
	}
	defer func() { _ = lock.Unlock() }()

	runID, err := p.manifest.StartRun(ctx)
	if err != nil {
		return nil, err
	}
	report = &Report{RunID: runID}
	defer func() {
		report.Elapsed = time.Since(started)
		// Record the outcome even when ctx was canceled.
		if ferr := p.manifest.FinishRun(context.WithoutCancel(ctx), runID, report.Documents, report.Chunks, err); ferr != nil {
			log.Error("ingestion: failed to record run outcome", slog.Int64("run_id", runID), slog.Any("error", ferr))
		}
	}()

	if err := p.prepare(ctx, progress); err != nil {
		return report, err
	}

	ids, err := loader.Discover(p.cfg.CorpusDir)
	if err != nil {
		return report, err
	}
	progress(fmt.Sprintf("found %d documents in %s", len(ids), p.cfg.CorpusDir))

	if err := p.pruneVanished(ctx, ids, report); err != nil {
		return report, err
	}

	b := &batcher{p: p, report: report}
	seq := 0
	for _, id := range ids {
		doc, err := loader.Load(ctx, p.cfg.CorpusDir, id, p.cfg.Titles)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			log.Warn("ingestion: skipping unreadable document", slog.String("doc_id", id), slog.Any("error", err))
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if doc.Text == "" {
			log.Warn("ingestion: skipping empty document", slog.String("doc_id", id))
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if doc.Title == "" {
			doc.Title = InferMetadata(id).Title
		}

		chars := len([]rune(doc.Text))
		var chunks []rag.Chunk
		for c := range p.cfg.Policy.Split(doc.ID, doc.Text) {
			c.Title = doc.Title
			c.Seq = seq
			seq++
			chunks = append(chunks, c)
		}

		if err := p.deleteStale(ctx, doc.ID, chars, chunks, report); err != nil {
			return report, err
		}

		if err := b.add(ctx, &store.Document{DocID: doc.ID, Title: doc.Title, Chars: chars, Chunks: len(chunks)}, chunks); err != nil {
			return report, err
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", doc.ID, len(chunks)))
	}
	if err := b.flush(ctx); err != nil {
		return report, err
	}

	if err := p.manifest.SaveManifest(ctx, &store.Manifest{
		Provider:     p.cfg.Identity.Provider,
		Model:        p.cfg.Identity.Model,
		Dimensions:   b.dims(p.cfg.Identity.Dimensions),
		ChunkSize:    p.cfg.Policy.Size(),
		ChunkOverlap: p.cfg.Policy.Overlap(),
		Collection:   p.cfg.Collection,
		VectorStore:  p.cfg.VectorStore,
	}); err != nil {
		return report, err
	}

	total, err := p.store.Count(ctx)
	if err != nil {
		return report, fmt.Errorf("ingestion: count: %w", err)
	}
	log.Info("ingestion: run completed",
		slog.Int64("run_id", runID),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("deleted", report.Deleted),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("store_count", total),
	)
	progress(fmt.Sprintf("indexed %d chunks from %d documents (%d in store)", report.Chunks, report.Documents, total))
	return report, nil
}

// prepare applies --rebuild, or checks that the existing index was built by
// the configured embedder with the configured chunking policy.
func (p *Pipeline) prepare(ctx context.Context, progress func(string)) error {
	if p.cfg.Rebuild {
		r, ok := p.store.(Resetter)
		if !ok {
			return fmt.Errorf("ingestion: vector store %T cannot be reset", p.store)
		}
		if err := r.Reset(ctx); err != nil {
			return fmt.Errorf("ingestion: reset store: %w", err)
		}
		if err := p.manifest.Reset(ctx); err != nil {
			return err
		}
		progress("dropped existing index")
		return nil
	}

	m, ok, err := p.manifest.Manifest(ctx)
	if err != nil || !ok {
		return err
	}
	id := p.cfg.Identity
	if err := m.CheckEmbedder(id.Provider, id.Model, 0); err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	if m.ChunkSize != p.cfg.Policy.Size() || m.ChunkOverlap != p.cfg.Policy.Overlap() {
		return fmt.Errorf("ingestion: index was chunked with size=%d overlap=%d but size=%d overlap=%d is configured: rerun with --rebuild",
			m.ChunkSize, m.ChunkOverlap, p.cfg.Policy.Size(), p.cfg.Policy.Overlap())
	}
	return nil
}

// pruneVanished removes every chunk of documents recorded in the manifest
// that no longer exist in the corpus.
func (p *Pipeline) pruneVanished(ctx context.Context, ids []string, report *Report) error {
	known, err := p.manifest.Documents(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	for _, d := range known {
		if present[d.DocID] {
			continue
		}
		stale := p.cfg.Policy.IDs(d.DocID, d.Chars)
		if err := p.store.Delete(ctx, stale); err != nil {
			return fmt.Errorf("ingestion: delete chunks of removed %s: %w", d.DocID, err)
		}
		if err := p.manifest.DeleteDocument(ctx, d.DocID); err != nil {
			return err
		}
		report.Deleted += len(stale)
	}
	return nil
}

// deleteStale removes chunk IDs the document produced last run but no longer
// produces, which happens when it shrank.
func (p *Pipeline) deleteStale(ctx context.Context, docID string, chars int, chunks []rag.Chunk, report *Report) error {
	prev, ok, err := p.manifest.Document(ctx, docID)
	if err != nil || !ok || prev.Chars <= chars {
		return err
	}
	current := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		current[c.ID] = true
	}
	var stale []string
	for _, id := range p.cfg.Policy.IDs(docID, prev.Chars) {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := p.store.Delete(ctx, stale); err != nil {
		return fmt.Errorf("ingestion: delete stale chunks of %s: %w", docID, err)
	}
	report.Deleted += len(stale)
	return nil
}

// EnrichText prefixes chunk text with its paper title. Only the embedded text
// is enriched; the stored chunk keeps its raw text and carries the title in
// metadata, which the prompt renders in each source header.
func EnrichText(title, text string) string {
	return "Paper Title: " + title + "\n\n" + text
}

// batcher accumulates chunks across documents and flushes them in
// UpsertBatchSize groups. A document is recorded in the manifest only after
// all of its chunks have been written.
type batcher struct {
	p      *Pipeline
	report *Report

	chunks  []rag.Chunk
	docs    []*store.Document
	dimSeen int
}

func (b *batcher) add(ctx context.Context, doc *store.Document, chunks []rag.Chunk) error {
	b.chunks = append(b.chunks, chunks...)
	b.docs = append(b.docs, doc)
	if len(b.chunks) >= b.p.cfg.UpsertBatchSize {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	for len(b.chunks) > 0 {
		n := min(len(b.chunks), b.p.cfg.UpsertBatchSize)
		batch := b.chunks[:n]

		vecs, err := b.p.embedAll(ctx, batch)
		if err != nil {
			return err
		}
		if err := b.p.store.Upsert(ctx, batch, vecs); err != nil {
			return fmt.Errorf("ingestion: upsert: %w", err)
		}
		if b.dimSeen == 0 && len(vecs) > 0 {
			b.dimSeen = len(vecs[0])
		}
		b.report.Chunks += n
		b.chunks = b.chunks[n:]
	}
	b.chunks = nil

	for _, d := range b.docs {
		if err := b.p.manifest.PutDocument(ctx, d); err != nil {
			return err
		}
		b.report.Documents++
	}
	b.docs = nil
	return nil
}

// dims returns the observed embedding size, or fallback if nothing was embedded.
func (b *batcher) dims(fallback int) int {
	if b.dimSeen > 0 {
		return b.dimSeen
	}
	return fallback
}

// embedAll embeds chunks in EmbedBatchSize requests with at most
// EmbedConcurrency in flight. The first failure cancels the rest.
func (p *Pipeline) embedAll(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	out := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EmbedConcurrency)
	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := min(start+p.cfg.EmbedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, EnrichText(c.Title, c.Text))
			}
			vecs, err := p.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("ingestion: embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("ingestion: embedder returned %d vectors for %d texts", len(vecs), len(texts))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims := len(out[0])
	for i, v := range out {
		if len(v) != dims || dims == 0 {
			return nil, fmt.Errorf("ingestion: inconsistent embedding size for chunk %s: got %d, want %d", chunks[i].ID, len(v), dims)
		}
	}
	return out, nil
}
