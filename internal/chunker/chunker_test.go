package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/paperqa-go/internal/rag"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		overlap int
		field   string
	}{
		{name: "overlap equals size", size: 200, overlap: 200, field: "CHUNK_OVERLAP"},
		{name: "overlap exceeds size", size: 200, overlap: 300, field: "CHUNK_OVERLAP"},
		{name: "negative overlap", size: 200, overlap: -1, field: "CHUNK_OVERLAP"},
		{name: "zero size", size: 0, overlap: 0, field: "CHUNK_SIZE"},
		{name: "valid", size: 200, overlap: 50},
		{name: "no overlap", size: 10, overlap: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tc.size, tc.overlap)
			if tc.field == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.size-tc.overlap, p.Step())
				return
			}
			var ce *rag.ConfigurationError
			require.True(t, errors.As(err, &ce), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestSplit_FiveHundredCharacters(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 500 {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()

	p, err := New(200, 50)
	require.NoError(t, err)

	chunks := p.Chunks("doc.pdf", text)
	require.Len(t, chunks, 4)

	wantOffsets := []int{0, 150, 300, 450}
	for i, c := range chunks {
		assert.Equal(t, wantOffsets[i], c.Offset, "chunk %d offset", i)
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, len(c.Text), 200)
		assert.Equal(t, text[c.Offset:c.Offset+len(c.Text)], c.Text)
	}

	// Consecutive chunks share 50 boundary characters.
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, prev.Text[len(prev.Text)-50:], cur.Text[:50], "overlap between %d and %d", i-1, i)
	}

	assert.Equal(t, 4, p.Count(len(text)))
}

func TestSplit_CoversWholeDocument(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("transformers attend to tokens. ", 97)
	p, err := New(120, 30)
	require.NoError(t, err)

	covered := make([]bool, len(text))
	for c := range p.Split("d", text) {
		for i := c.Offset; i < c.Offset+len(c.Text); i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		require.True(t, ok, "character %d not covered", i)
	}
}

func TestSplit_ShortDocumentYieldsOneChunk(t *testing.T) {
	t.Parallel()

	p, err := New(200, 50)
	require.NoError(t, err)

	for _, text := range []string{"x", strings.Repeat("y", 180), strings.Repeat("z", 200)} {
		chunks := p.Chunks("short.md", text)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Offset)
	}

	assert.Empty(t, p.Chunks("empty.md", ""))
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("Attention is all you need. ", 40)
	p, err := New(100, 20)
	require.NoError(t, err)

	first := p.Chunks("1706.03762.pdf", text)
	second := p.Chunks("1706.03762.pdf", text)
	assert.Equal(t, first, second)

	other := p.Chunks("other.pdf", text)
	assert.NotEqual(t, first[0].ID, other[0].ID, "IDs must depend on the document")
}

func TestSplit_MultibyteRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 250)
	p, err := New(100, 10)
	require.NoError(t, err)

	for c := range p.Split("u.txt", text) {
		assert.LessOrEqual(t, len([]rune(c.Text)), 100)
		assert.True(t, strings.HasPrefix(c.Text, "é"))
	}
}

func TestSplit_StopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	p, err := New(10, 2)
	require.NoError(t, err)

	n := 0
	for range p.Split("d", strings.Repeat("a", 1000)) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestIDs_MatchSplit(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("q", 777)
	p, err := New(200, 50)
	require.NoError(t, err)

	var want []string
	for c := range p.Split("doc", text) {
		want = append(want, c.ID)
	}
	assert.Equal(t, want, p.IDs("doc", len(text)))
}
