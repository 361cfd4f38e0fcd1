package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/paperqa-go/internal/rag"
)

func ranked(n, size int) []rag.ScoredChunk {
	out := make([]rag.ScoredChunk, n)
	for i := range out {
		out[i] = rag.ScoredChunk{
			Chunk: rag.Chunk{
				ID:    fmt.Sprintf("c%d", i),
				DocID: fmt.Sprintf("%02d_paper.pdf", i),
				Title: fmt.Sprintf("Paper %d", i),
				Text:  strings.Repeat(string(rune('a'+i%26)), size),
			},
			Score: 1 - float32(i)/float32(n+1),
		}
	}
	return out
}

func TestBuild_LabelsChunksAndQuestion(t *testing.T) {
	t.Parallel()

	a, err := NewAssembler(0)
	require.NoError(t, err)
	assert.Equal(t, 4000, a.MaxTokens())

	chunks := ranked(2, 20)
	chunks[1].Title = ""
	p, err := a.Build("What is attention?", chunks)
	require.NoError(t, err)

	assert.Contains(t, p.System, InsufficientContext)
	assert.Contains(t, p.System, "*only*")
	assert.Contains(t, p.User, "### Source 1: Paper 0 (00_paper.pdf)\n"+chunks[0].Text)
	assert.Contains(t, p.User, "### Source 2: 01_paper.pdf (01_paper.pdf)")
	assert.Contains(t, p.User, "Question: What is attention?")
	assert.True(t, strings.HasPrefix(p.User, "Context:\n---\n"))
	assert.Len(t, p.Used, 2)
	assert.Zero(t, p.Dropped)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
}

func TestBuild_NeverExceedsBudget(t *testing.T) {
	t.Parallel()

	for _, limit := range []int{200, 500, 1000, 4000} {
		for _, size := range []int{10, 333, 3000, 20000} {
			t.Run(fmt.Sprintf("budget=%d/chunk=%d", limit, size), func(t *testing.T) {
				t.Parallel()
				a, err := NewAssembler(limit)
				require.NoError(t, err)

				in := ranked(30, size)
				p, err := a.Build("How does dropout regularize?", in)
				require.NoError(t, err)
				assert.LessOrEqual(t, p.Tokens(), limit)
				assert.Equal(t, len(in), len(p.Used)+p.Dropped)

				// The survivors are always the best-ranked prefix.
				for i, c := range p.Used {
					assert.Equal(t, in[i].ID, c.ID)
				}
			})
		}
	}
}

func TestBuild_DropsLowestRankedFirst(t *testing.T) {
	t.Parallel()

	// Each block costs about 260 tokens; 800 leaves room for two.
	a, err := NewAssembler(800)
	require.NoError(t, err)

	p, err := a.Build("q", ranked(5, 1000))
	require.NoError(t, err)
	require.Len(t, p.Used, 2)
	assert.Equal(t, "c0", p.Used[0].ID)
	assert.Equal(t, "c1", p.Used[1].ID)
	assert.Equal(t, 3, p.Dropped)
	assert.NotContains(t, p.User, "Source 3")
}

func TestBuild_NoChunks(t *testing.T) {
	t.Parallel()

	a, err := NewAssembler(0)
	require.NoError(t, err)

	p, err := a.Build("q", nil)
	require.NoError(t, err)
	assert.Empty(t, p.Used)
}

func TestBuild_BudgetTooSmallForQuestion(t *testing.T) {
	t.Parallel()

	a, err := NewAssembler(50)
	require.NoError(t, err)

	_, err = a.Build(strings.Repeat("why ", 100), nil)
	require.Error(t, err)
}

func TestNewAssembler_RejectsNegative(t *testing.T) {
	t.Parallel()

	_, err := NewAssembler(-1)
	var ce *rag.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "MAX_CONTEXT_TOKENS", ce.Field)
}
