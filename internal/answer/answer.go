// Package answer orchestrates one question: validate it, retrieve the most
// similar chunks, assemble a budgeted prompt and ask the generation model.
// It is shared by the HTTP server and the `paperqa ask` command.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/54b3r/paperqa-go/internal/logging"
	"github.com/54b3r/paperqa-go/internal/prompt"
	"github.com/54b3r/paperqa-go/internal/rag"
)

// MaxQuestionLength is the longest accepted question, in characters.
const MaxQuestionLength = 500

const tracerName = "github.com/54b3r/paperqa-go/internal/answer"

// Generator produces an answer from chat messages.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message) (string, error)
}

// Config holds the query-time settings.
type Config struct {
	// TopK is the number of chunks retrieved per question. Defaults to 30.
	TopK int
	// MinSimilarity drops retrieved chunks scoring below it. 0 keeps all.
	MinSimilarity float32
}

// Source identifies a paper that contributed context to an answer.
type Source struct {
	DocID string  `json:"doc_id"`
	Title string  `json:"title"`
	Score float32 `json:"score"`
}

// Answer is the result of one question.
type Answer struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	ChunksUsed int      `json:"chunks_used"`
	Sources    []Source `json:"sources"`
}

// Service answers questions over the indexed corpus.
type Service struct {
	retriever rag.Retriever
	assembler *prompt.Assembler
	generator Generator
	cfg       Config
	tracer    trace.Tracer
}

// NewService wires a Service. cfg may be nil.
func NewService(r rag.Retriever, a *prompt.Assembler, g Generator, cfg *Config) (*Service, error) {
	if r == nil || a == nil || g == nil {
		return nil, fmt.Errorf("answer: retriever, assembler and generator are required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.TopK <= 0 {
		c.TopK = 30
	}
	return &Service{
		retriever: r,
		assembler: a,
		generator: g,
		cfg:       c,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// ValidateQuestion trims q and checks its length.
func ValidateQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", &rag.MalformedRequestError{Reason: "question is required"}
	}
	if n := utf8.RuneCountInString(q); n > MaxQuestionLength {
		return "", &rag.MalformedRequestError{Reason: fmt.Sprintf("question is %d characters, the limit is %d", n, MaxQuestionLength)}
	}
	return q, nil
}

// Ask answers question. When no retrieved chunk is usable the
// insufficient-context answer is returned without calling the generator.
func (s *Service) Ask(ctx context.Context, question string) (_ *Answer, err error) {
	q, err := ValidateQuestion(question)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "ask", trace.WithAttributes(attribute.Int("question.length", len(q))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := logging.FromContext(ctx)
	started := time.Now()

	chunks, err := s.retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	_, aspan := s.tracer.Start(ctx, "assemble")
	p, err := s.assembler.Build(q, chunks)
	if err == nil {
		aspan.SetAttributes(
			attribute.Int("chunks.used", len(p.Used)),
			attribute.Int("chunks.dropped", p.Dropped),
			attribute.Int("prompt.tokens", p.Tokens()),
		)
	}
	aspan.End()
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}

	out := &Answer{Question: q, ChunksUsed: len(p.Used), Sources: sources(p.Used)}
	if len(p.Used) == 0 {
		log.Info("answer: no usable context", slog.Int("retrieved", len(chunks)))
		out.Answer = prompt.InsufficientContext
		return out, nil
	}

	gctx, gspan := s.tracer.Start(ctx, "generate")
	text, err := s.generator.Generate(gctx, p.Messages())
	if err != nil {
		gspan.RecordError(err)
		gspan.SetStatus(codes.Error, err.Error())
	}
	gspan.End()
	if err != nil {
		return nil, err
	}
	if text == "" {
		text = prompt.InsufficientContext
	}
	out.Answer = text

	log.Info("answer: completed",
		slog.Int("chunks_used", out.ChunksUsed),
		slog.Int("dropped", p.Dropped),
		slog.Int("prompt_tokens", p.Tokens()),
		slog.Duration("duration", time.Since(started)),
	)
	return out, nil
}

// retrieve fetches the top-k chunks and applies the similarity floor.
func (s *Service) retrieve(ctx context.Context, q string) ([]rag.ScoredChunk, error) {
	ctx, span := s.tracer.Start(ctx, "retrieve", trace.WithAttributes(attribute.Int("top_k", s.cfg.TopK)))
	defer span.End()

	chunks, err := s.retriever.Retrieve(ctx, q, s.cfg.TopK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if s.cfg.MinSimilarity > 0 {
		kept := chunks[:0:0]
		for _, c := range chunks {
			if c.Score >= s.cfg.MinSimilarity {
				kept = append(kept, c)
			}
		}
		chunks = kept
	}
	span.SetAttributes(attribute.Int("chunks.retrieved", len(chunks)))
	return chunks, nil
}

// sources lists each contributing paper once, in rank order.
func sources(used []rag.ScoredChunk) []Source {
	out := []Source{}
	seen := make(map[string]bool, len(used))
	for _, c := range used {
		if seen[c.DocID] {
			continue
		}
		seen[c.DocID] = true
		out = append(out, Source{DocID: c.DocID, Title: c.Title, Score: c.Score})
	}
	return out
}
