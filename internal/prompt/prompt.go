// Package prompt assembles the grounded prompt sent to the generation model:
// a system instruction restricting the answer to the supplied context, the
// retrieved chunks labelled with their paper, and the user's question. The
// assembled prompt never exceeds the configured token budget.
package prompt

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/paperqa-go/internal/budget"
	"github.com/54b3r/paperqa-go/internal/rag"
)

// InsufficientContext is the answer given when the documents do not cover
// the question.
const InsufficientContext = "I cannot find the answer in the provided documents"

// systemPrompt is the fixed instruction sent as the system message.
const systemPrompt = `You are an AI Research Assistant. Answer the user's question based *only* on the following context. ` +
	`If the context does not contain the answer, say "` + InsufficientContext + `". ` +
	`Do not use outside knowledge and do not invent citations.`

const (
	contextHeader = "Context:\n---\n"
	contextFooter = "\n---\n\nQuestion: "
	answerSuffix  = "\n\nAnswer with specific references to papers when possible."
	blockSep      = "\n\n"
)

// Prompt is an assembled prompt ready for the generation model.
type Prompt struct {
	// System is the system instruction.
	System string
	// User carries the context blocks and the question.
	User string
	// Used lists the chunks included, best first.
	Used []rag.ScoredChunk
	// Dropped counts retrieved chunks left out to respect the budget.
	Dropped int
}

// Messages returns the prompt as chat messages.
func (p *Prompt) Messages() []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(p.System),
		schema.UserMessage(p.User),
	}
}

// Tokens returns the estimated size of the prompt.
func (p *Prompt) Tokens() int {
	return budget.Estimate(p.System) + budget.Estimate(p.User)
}

// Assembler builds prompts within a fixed token budget.
type Assembler struct {
	maxTokens int
}

// NewAssembler returns an Assembler bounded by maxTokens. Zero selects
// budget.DefaultMaxContextTokens.
func NewAssembler(maxTokens int) (*Assembler, error) {
	if maxTokens == 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	if maxTokens < 0 {
		return nil, &rag.ConfigurationError{Field: "MAX_CONTEXT_TOKENS", Reason: "must be positive"}
	}
	return &Assembler{maxTokens: maxTokens}, nil
}

// MaxTokens returns the budget.
func (a *Assembler) MaxTokens() int { return a.maxTokens }

// Build assembles the prompt for question from ranked chunks, best first.
// Chunks are dropped from the tail until the prompt fits. It fails only when
// the instruction and question alone exceed the budget.
func (a *Assembler) Build(question string, ranked []rag.ScoredChunk) (*Prompt, error) {
	fixed := budget.Estimate(systemPrompt) +
		budget.Estimate(contextHeader) +
		budget.Estimate(contextFooter) +
		budget.Estimate(question) +
		budget.Estimate(answerSuffix)
	if fixed > a.maxTokens {
		return nil, fmt.Errorf("prompt: question and instructions need %d tokens, budget is %d", fixed, a.maxTokens)
	}

	blocks := make([]string, len(ranked))
	for i, c := range ranked {
		blocks[i] = block(i+1, c)
	}
	kept := budget.FitRanked(blocks, a.maxTokens-fixed, func(b string) int {
		return budget.Estimate(b) + budget.Estimate(blockSep)
	})
	n := len(kept)

	var user strings.Builder
	user.WriteString(contextHeader)
	user.WriteString(strings.Join(kept, blockSep))
	user.WriteString(contextFooter)
	user.WriteString(question)
	user.WriteString(answerSuffix)

	return &Prompt{
		System:  systemPrompt,
		User:    user.String(),
		Used:    ranked[:n],
		Dropped: len(ranked) - n,
	}, nil
}

// block renders one chunk labelled with its source paper.
func block(n int, c rag.ScoredChunk) string {
	title := c.Title
	if title == "" {
		title = c.DocID
	}
	return fmt.Sprintf("### Source %d: %s (%s)\n%s", n, title, c.DocID, c.Text)
}
