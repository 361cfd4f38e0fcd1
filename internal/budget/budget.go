// Package budget provides token budget estimation for prompt assembly.
// Generation backends use different tokenizers, so this package uses a
// conservative character-based heuristic: 1 token ≈ 4 characters. Estimates
// round up so that summing the estimates of parts never under-counts the
// whole.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens.
	// Override via MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 4000
)

// Estimate returns a rough token count for s, rounded up.
func Estimate(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitRanked returns the longest prefix of ranked (best first) whose summed
// cost fits in available tokens. Lower-ranked items are dropped first; an
// item that does not fit ends the prefix even if a later, smaller one would.
func FitRanked[T any](ranked []T, available int, cost func(T) int) []T {
	used := 0
	for i, item := range ranked {
		used += cost(item)
		if used > available {
			return ranked[:i]
		}
	}
	return ranked
}
