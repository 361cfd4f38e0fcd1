package answer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/paperqa-go/internal/prompt"
	"github.com/54b3r/paperqa-go/internal/provider"
	"github.com/54b3r/paperqa-go/internal/rag"
	"github.com/54b3r/paperqa-go/internal/retry"
)

type fakeRetriever struct {
	chunks []rag.ScoredChunk
	err    error
	topK   int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, topK int) ([]rag.ScoredChunk, error) {
	f.topK = topK
	return f.chunks, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	calls  atomic.Int32
	msgs   []*schema.Message
}

func (f *fakeGenerator) Generate(_ context.Context, msgs []*schema.Message) (string, error) {
	f.calls.Add(1)
	f.msgs = msgs
	return f.answer, f.err
}

func scored(docID, title string, score float32) rag.ScoredChunk {
	return rag.ScoredChunk{
		Chunk: rag.Chunk{ID: docID + "#" + title, DocID: docID, Title: title, Text: "body"},
		Score: score,
	}
}

func newService(t *testing.T, r rag.Retriever, g Generator, cfg *Config) *Service {
	t.Helper()
	a, err := prompt.NewAssembler(0)
	require.NoError(t, err)
	s, err := NewService(r, a, g, cfg)
	require.NoError(t, err)
	return s
}

func TestAsk_ReturnsGeneratedAnswer(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{chunks: []rag.ScoredChunk{
		scored("01_attention.pdf", "Attention Is All You Need", 0.9),
		scored("01_attention.pdf", "Attention Is All You Need", 0.8),
		scored("02_bert.pdf", "BERT", 0.7),
	}}
	g := &fakeGenerator{answer: "Self-attention [Attention Is All You Need]."}
	s := newService(t, r, g, nil)

	got, err := s.Ask(context.Background(), "  What is self-attention?  ")
	require.NoError(t, err)

	assert.Equal(t, "What is self-attention?", got.Question)
	assert.Equal(t, g.answer, got.Answer)
	assert.Equal(t, 3, got.ChunksUsed)
	assert.Equal(t, []Source{
		{DocID: "01_attention.pdf", Title: "Attention Is All You Need", Score: 0.9},
		{DocID: "02_bert.pdf", Title: "BERT", Score: 0.7},
	}, got.Sources)
	assert.Equal(t, 30, r.topK)

	require.Len(t, g.msgs, 2)
	assert.Contains(t, g.msgs[1].Content, "Question: What is self-attention?")
}

func TestAsk_RejectsMalformedQuestions(t *testing.T) {
	t.Parallel()

	g := &fakeGenerator{}
	s := newService(t, &fakeRetriever{}, g, nil)

	for _, q := range []string{"", "   ", strings.Repeat("x", MaxQuestionLength+1)} {
		_, err := s.Ask(context.Background(), q)
		var me *rag.MalformedRequestError
		assert.True(t, errors.As(err, &me), "question %q: got %v", q, err)
	}
	assert.Zero(t, g.calls.Load())

	_, err := ValidateQuestion(strings.Repeat("é", MaxQuestionLength))
	assert.NoError(t, err, "length is counted in characters")
}

func TestAsk_NoUsableContextSkipsGenerator(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{chunks: []rag.ScoredChunk{scored("a.pdf", "A", 0.1), scored("b.pdf", "B", 0.2)}}
	g := &fakeGenerator{answer: "made up"}
	s := newService(t, r, g, &Config{TopK: 5, MinSimilarity: 0.5})

	got, err := s.Ask(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, prompt.InsufficientContext, got.Answer)
	assert.Zero(t, got.ChunksUsed)
	assert.Empty(t, got.Sources)
	assert.Zero(t, g.calls.Load())
	assert.Equal(t, 5, r.topK)
}

func TestAsk_PropagatesTypedErrors(t *testing.T) {
	t.Parallel()

	empty := &fakeRetriever{err: &rag.EmptyIndexError{Collection: "ai_papers"}}
	_, err := newService(t, empty, &fakeGenerator{}, nil).Ask(context.Background(), "q")
	var ee *rag.EmptyIndexError
	require.True(t, errors.As(err, &ee))

	r := &fakeRetriever{chunks: []rag.ScoredChunk{scored("a.pdf", "A", 0.9)}}
	down := &fakeGenerator{err: &rag.ProviderUnavailableError{Provider: "generation", Err: errors.New("503")}}
	_, err = newService(t, r, down, nil).Ask(context.Background(), "q")
	require.True(t, rag.IsUnavailable(err))
}

// flakyModel times out on its first two attempts.
type flakyModel struct {
	calls atomic.Int32
}

func (m *flakyModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.calls.Add(1) <= 2 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return schema.AssistantMessage("Residual connections ease optimisation.", nil), nil
}

func (m *flakyModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestAsk_GenerationRecoversAfterTwoTimeouts(t *testing.T) {
	t.Parallel()

	m := &flakyModel{}
	policy := retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: 20 * time.Millisecond}
	g := provider.NewGenerator(m, policy, "fake")

	r := &fakeRetriever{chunks: []rag.ScoredChunk{scored("resnet.pdf", "Deep Residual Learning", 0.9)}}
	got, err := newService(t, r, g, nil).Ask(context.Background(), "Why do residual connections help?")
	require.NoError(t, err)
	assert.Equal(t, "Residual connections ease optimisation.", got.Answer)
	assert.Equal(t, int32(3), m.calls.Load(), "exactly two retries")
}

// constEmbedder maps every text to the same unit vector.
type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestAsk_EmptyStore(t *testing.T) {
	t.Parallel()

	store, err := rag.NewChromemStore(&rag.ChromemConfig{Path: filepath.Join(t.TempDir(), "vectors")}, nil)
	require.NoError(t, err)
	defer store.Close()

	r, err := rag.NewRetriever(constEmbedder{}, store, &rag.RetrieverConfig{Collection: "ai_papers"})
	require.NoError(t, err)

	g := &fakeGenerator{}
	_, err = newService(t, r, g, nil).Ask(context.Background(), "anything")
	var ee *rag.EmptyIndexError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.True(t, rag.IsUnavailable(err))
	assert.Zero(t, g.calls.Load())
}
