// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, chunk retrieval, and embedding.
// Concrete implementations (chromem-go, Qdrant) satisfy these interfaces so
// the answer layer never depends on a specific backend.
package rag

import (
	"context"
	"strconv"
)

// Metadata keys persisted alongside every chunk in the vector store.
const (
	MetaDocID  = "doc_id"
	MetaSource = "source"
	MetaTitle  = "title"
	MetaIndex  = "index"
	MetaOffset = "offset"
	MetaSeq    = "seq"
)

// Chunk is a contiguous span of a document's text and the unit of retrieval.
type Chunk struct {
	// ID is a deterministic function of DocID and Offset.
	ID string

	// DocID is the stable identifier of the source document (its corpus-relative filename).
	DocID string

	// Title is the human-readable paper title used to label the chunk in prompts.
	Title string

	// Text is the chunk content as stored and embedded.
	Text string

	// Index is the position of this chunk within its document.
	Index int

	// Offset is the character (rune) offset of the chunk within the document text.
	Offset int

	// Seq is the corpus-wide insertion sequence, used as the retrieval tie-breaker.
	Seq int
}

// Metadata returns the string map persisted with the chunk.
func (c Chunk) Metadata() map[string]string {
	return map[string]string{
		MetaDocID:  c.DocID,
		MetaSource: c.DocID,
		MetaTitle:  c.Title,
		MetaIndex:  strconv.Itoa(c.Index),
		MetaOffset: strconv.Itoa(c.Offset),
		MetaSeq:    strconv.Itoa(c.Seq),
	}
}

// ChunkFromMetadata rebuilds a Chunk from a stored id, text and metadata map.
// Missing or malformed numeric fields decode as zero.
func ChunkFromMetadata(id, text string, meta map[string]string) Chunk {
	c := Chunk{ID: id, Text: text}
	if meta == nil {
		return c
	}
	c.DocID = meta[MetaDocID]
	if c.DocID == "" {
		c.DocID = meta[MetaSource]
	}
	c.Title = meta[MetaTitle]
	c.Index, _ = strconv.Atoi(meta[MetaIndex])
	c.Offset, _ = strconv.Atoi(meta[MetaOffset])
	c.Seq, _ = strconv.Atoi(meta[MetaSeq])
	return c
}

// ScoredChunk pairs a retrieved Chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity to the query; higher is closer.
	Score float32
}

// VectorStore is the interface for persisting and searching chunk embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or replaces a batch of chunks keyed by Chunk.ID.
	// The embeddings slice must be parallel to chunks.
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search returns up to topK chunks nearest to the query embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]ScoredChunk, error)

	// Count returns the number of chunks currently stored.
	Count(ctx context.Context) (int, error)

	// Delete removes chunks by their IDs. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the chunks most relevant to a query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns up to topK chunks ordered by similarity descending.
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredChunk, error)
}
