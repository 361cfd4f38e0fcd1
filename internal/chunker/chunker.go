// Package chunker splits document text into overlapping, fixed-size windows.
//
// Sizes are measured in characters (runes), so multi-byte text extracted from
// PDFs is never cut mid-character. Chunk IDs are name-based UUIDs derived from
// the document ID and the chunk's rune offset, which makes re-indexing an
// unchanged document overwrite the same store entries.
package chunker

import (
	"fmt"
	"iter"
	"strconv"

	"github.com/google/uuid"

	"github.com/54b3r/paperqa-go/internal/rag"
)

// Defaults match the corpus the service was tuned on: long academic prose
// where a 3000-character window keeps most paragraphs intact.
const (
	DefaultSize    = 3000
	DefaultOverlap = 200
)

// namespace scopes chunk UUIDs to this application.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/paperqa-go/chunk"))

// Policy is a validated chunking configuration. The zero value is not usable;
// construct with New.
type Policy struct {
	size    int
	overlap int
}

// New validates size and overlap and returns a Policy. overlap must be
// non-negative and strictly less than size.
func New(size, overlap int) (*Policy, error) {
	if size <= 0 {
		return nil, &rag.ConfigurationError{Field: "CHUNK_SIZE", Reason: fmt.Sprintf("must be positive, got %d", size)}
	}
	if overlap < 0 {
		return nil, &rag.ConfigurationError{Field: "CHUNK_OVERLAP", Reason: fmt.Sprintf("must not be negative, got %d", overlap)}
	}
	if overlap >= size {
		return nil, &rag.ConfigurationError{
			Field:  "CHUNK_OVERLAP",
			Reason: fmt.Sprintf("must be less than CHUNK_SIZE (%d), got %d", size, overlap),
		}
	}
	return &Policy{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in characters.
func (p *Policy) Size() int { return p.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (p *Policy) Overlap() int { return p.overlap }

// Step returns the distance between consecutive chunk starts.
func (p *Policy) Step() int { return p.size - p.overlap }

// Split lazily yields the chunks of text for docID. Text no longer than Size
// yields exactly one chunk equal to the text; longer text yields a window at
// every multiple of Step below its length, so the final window may sit
// entirely inside its predecessor. Empty text yields nothing. Seq is left zero
// for the caller to assign.
func (p *Policy) Split(docID, text string) iter.Seq[rag.Chunk] {
	return func(yield func(rag.Chunk) bool) {
		runes := []rune(text)
		n := len(runes)
		if n == 0 {
			return
		}
		if n <= p.size {
			yield(rag.Chunk{ID: ID(docID, 0), DocID: docID, Text: text})
			return
		}
		for index, start := 0, 0; start < n; index, start = index+1, start+p.Step() {
			end := min(start+p.size, n)
			c := rag.Chunk{
				ID:     ID(docID, start),
				DocID:  docID,
				Text:   string(runes[start:end]),
				Index:  index,
				Offset: start,
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Chunks collects Split into a slice.
func (p *Policy) Chunks(docID, text string) []rag.Chunk {
	var out []rag.Chunk
	for c := range p.Split(docID, text) {
		out = append(out, c)
	}
	return out
}

// Count returns how many chunks Split yields for a text of n characters.
func (p *Policy) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= p.size {
		return 1
	}
	return (n + p.Step() - 1) / p.Step()
}

// IDs returns the chunk IDs Split produces for a document of n characters,
// without needing the text. Used to locate stale chunks after a document shrinks.
func (p *Policy) IDs(docID string, n int) []string {
	count := p.Count(n)
	ids := make([]string, 0, count)
	for i := range count {
		ids = append(ids, ID(docID, i*p.Step()))
	}
	return ids
}

// ID returns the deterministic chunk ID for the chunk of docID starting at
// the given rune offset.
func ID(docID string, offset int) string {
	return uuid.NewSHA1(namespace, []byte(docID+"#"+strconv.Itoa(offset))).String()
}
