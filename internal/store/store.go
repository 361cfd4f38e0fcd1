// Package store provides the SQLite-backed index manifest. The manifest sits
// next to the vector data and records which embedding model and chunking
// parameters built the index, which documents it holds, and the outcome of
// every indexing run. The query service reads it at startup to refuse an
// index that the configured embedder cannot search.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/paperqa-go/internal/rag"
)

// FileName is the manifest file name inside the index directory.
const FileName = "manifest.db"

// RunStatus is the lifecycle state of an indexing run.
type RunStatus string

const (
	// RunStarted marks a run that has not finished (or crashed mid-way).
	RunStarted RunStatus = "started"
	// RunCompleted marks a run that indexed every document.
	RunCompleted RunStatus = "completed"
	// RunFailed marks a run that aborted; the index may be partial.
	RunFailed RunStatus = "failed"
)

// Manifest describes how the index was built.
type Manifest struct {
	Provider     string
	Model        string
	Dimensions   int
	ChunkSize    int
	ChunkOverlap int
	Collection   string
	VectorStore  string
	UpdatedAt    time.Time
}

// Identity renders the embedding identity as provider/model@dims.
func (m *Manifest) Identity() string {
	return fmt.Sprintf("%s/%s@%d", m.Provider, m.Model, m.Dimensions)
}

// CheckEmbedder returns *rag.IncompatibleIndexError when vectors produced by
// provider/model at dims cannot be compared with the indexed ones. A zero
// dims skips the dimension check.
func (m *Manifest) CheckEmbedder(provider, model string, dims int) error {
	if m.Provider == provider && m.Model == model && (dims == 0 || m.Dimensions == dims) {
		return nil
	}
	configured := &Manifest{Provider: provider, Model: model, Dimensions: dims}
	return &rag.IncompatibleIndexError{Indexed: m.Identity(), Configured: configured.Identity()}
}

// Document is one indexed corpus file.
type Document struct {
	DocID  string
	Title  string
	Chars  int
	Chunks int
	// IndexedAt is when the document's chunks were last upserted.
	IndexedAt time.Time
}

// Run is one invocation of the indexer.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Documents  int
	Chunks     int
	Error      string
}

// SQLiteStore is the manifest backed by a local SQLite database.
// It is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
}

// PathIn returns the manifest path inside indexDir.
func PathIn(indexDir string) string {
	return filepath.Join(indexDir, FileName)
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS index_meta (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
    doc_id      TEXT    PRIMARY KEY,
    title       TEXT    NOT NULL,
    chars       INTEGER NOT NULL,
    chunks      INTEGER NOT NULL,
    indexed_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER NOT NULL DEFAULT 0,
    status       TEXT    NOT NULL CHECK(status IN ('started','completed','failed')),
    documents    INTEGER NOT NULL DEFAULT 0,
    chunks       INTEGER NOT NULL DEFAULT 0,
    error        TEXT    NOT NULL DEFAULT ''
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// manifest keys in index_meta.
const (
	keyProvider     = "provider"
	keyModel        = "model"
	keyDimensions   = "dimensions"
	keyChunkSize    = "chunk_size"
	keyChunkOverlap = "chunk_overlap"
	keyCollection   = "collection"
	keyVectorStore  = "vector_store"
	keyUpdatedAt    = "updated_at"
)

// Manifest returns the recorded manifest. ok is false when no index has been
// built yet.
func (s *SQLiteStore) Manifest(ctx context.Context) (m *Manifest, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, false, fmt.Errorf("store: manifest: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, false, fmt.Errorf("store: manifest scan: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("store: manifest rows: %w", err)
	}
	if kv[keyProvider] == "" {
		return nil, false, nil
	}

	m = &Manifest{
		Provider:    kv[keyProvider],
		Model:       kv[keyModel],
		Collection:  kv[keyCollection],
		VectorStore: kv[keyVectorStore],
	}
	for key, dst := range map[string]*int{
		keyDimensions:   &m.Dimensions,
		keyChunkSize:    &m.ChunkSize,
		keyChunkOverlap: &m.ChunkOverlap,
	} {
		if _, err := fmt.Sscan(kv[key], dst); err != nil {
			return nil, false, fmt.Errorf("store: manifest %s: %w", key, err)
		}
	}
	var ts int64
	if _, err := fmt.Sscan(kv[keyUpdatedAt], &ts); err == nil {
		m.UpdatedAt = time.Unix(ts, 0)
	}
	return m, true, nil
}

// SaveManifest replaces the recorded manifest.
func (s *SQLiteStore) SaveManifest(ctx context.Context, m *Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save manifest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	values := map[string]string{
		keyProvider:     m.Provider,
		keyModel:        m.Model,
		keyDimensions:   fmt.Sprint(m.Dimensions),
		keyChunkSize:    fmt.Sprint(m.ChunkSize),
		keyChunkOverlap: fmt.Sprint(m.ChunkOverlap),
		keyCollection:   m.Collection,
		keyVectorStore:  m.VectorStore,
		keyUpdatedAt:    fmt.Sprint(time.Now().Unix()),
	}
	const q = `INSERT INTO index_meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, q, k, v); err != nil {
			return fmt.Errorf("store: save manifest %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save manifest commit: %w", err)
	}
	return nil
}

// Document returns the record for docID. ok is false if it was never indexed.
func (s *SQLiteStore) Document(ctx context.Context, docID string) (d *Document, ok bool, err error) {
	const q = `SELECT doc_id, title, chars, chunks, indexed_at FROM documents WHERE doc_id = ?`
	d = &Document{}
	var ts int64
	err = s.db.QueryRowContext(ctx, q, docID).Scan(&d.DocID, &d.Title, &d.Chars, &d.Chunks, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: document %s: %w", docID, err)
	}
	d.IndexedAt = time.Unix(ts, 0)
	return d, true, nil
}

// Documents returns every indexed document ordered by doc ID.
func (s *SQLiteStore) Documents(ctx context.Context) ([]Document, error) {
	const q = `SELECT doc_id, title, chars, chunks, indexed_at FROM documents ORDER BY doc_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.DocID, &d.Title, &d.Chars, &d.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		d.IndexedAt = time.Unix(ts, 0)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return docs, nil
}

// PutDocument inserts or replaces the record for d.DocID.
func (s *SQLiteStore) PutDocument(ctx context.Context, d *Document) error {
	const q = `INSERT INTO documents (doc_id, title, chars, chunks, indexed_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET title = excluded.title, chars = excluded.chars,
    chunks = excluded.chunks, indexed_at = excluded.indexed_at`
	if _, err := s.db.ExecContext(ctx, q, d.DocID, d.Title, d.Chars, d.Chunks, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: put document %s: %w", d.DocID, err)
	}
	return nil
}

// DeleteDocument removes the record for docID. Unknown IDs are ignored.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("store: delete document %s: %w", docID, err)
	}
	return nil
}

// StartRun records the beginning of an indexing run and returns its ID.
func (s *SQLiteStore) StartRun(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO runs (started_at, status) VALUES (?, ?)`,
		time.Now().Unix(), string(RunStarted))
	if err != nil {
		return 0, fmt.Errorf("store: start run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: start run id: %w", err)
	}
	return id, nil
}

// FinishRun records the outcome of run id. A non-nil runErr marks it failed.
func (s *SQLiteStore) FinishRun(ctx context.Context, id int64, documents, chunks int, runErr error) error {
	status, msg := RunCompleted, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	const q = `UPDATE runs SET finished_at = ?, status = ?, documents = ?, chunks = ?, error = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, time.Now().Unix(), string(status), documents, chunks, msg, id); err != nil {
		return fmt.Errorf("store: finish run %d: %w", id, err)
	}
	return nil
}

// LastRun returns the most recent run. ok is false if none has been recorded.
func (s *SQLiteStore) LastRun(ctx context.Context) (r *Run, ok bool, err error) {
	const q = `SELECT id, started_at, finished_at, status, documents, chunks, error
FROM runs ORDER BY id DESC LIMIT 1`
	r = &Run{}
	var started, finished int64
	var status string
	err = s.db.QueryRowContext(ctx, q).Scan(&r.ID, &started, &finished, &status, &r.Documents, &r.Chunks, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: last run: %w", err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = time.Unix(started, 0)
	if finished > 0 {
		r.FinishedAt = time.Unix(finished, 0)
	}
	return r, true, nil
}

// Reset forgets the manifest and every document record. Run history is kept.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_meta; DELETE FROM documents;`); err != nil {
		return fmt.Errorf("store: reset: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
