package ingestion

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// InferredMetadata holds what can be learned about a paper from its file name
// alone. It is the fallback when the title map has no entry and the input to
// the arXiv lookup in `paperqa titles`.
type InferredMetadata struct {
	// ArxivID is the new-style arXiv identifier (e.g. "1706.03762"), without
	// version suffix. Empty when the name carries none.
	ArxivID string
	// ArxivVersion is the version suffix (e.g. "v5"), if present.
	ArxivVersion string
	// Title is the cleaned, title-cased file name.
	Title string
}

var (
	arxivPattern   = regexp.MustCompile(`(\d{4}\.\d{4,5})(v\d+)?`)
	numericPrefix  = regexp.MustCompile(`^\d+_`)
	spaceRun       = regexp.MustCompile(`\s+`)
	leadingArxivID = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?[_\-\s]*`)
)

// InferMetadata inspects a corpus file name (or slash-separated relative
// path) and returns best-effort metadata. The title is never empty: a name
// that cleans down to nothing falls back to the bare file name.
//
// Supported name shapes:
//
//	1706.03762v5.pdf
//	03_1706.03762_attention_is_all_you_need.pdf
//	12_deep_residual_learning.pdf
func InferMetadata(name string) InferredMetadata {
	base := path.Base(name)
	stem := strings.TrimSuffix(base, path.Ext(base))

	var m InferredMetadata
	if sub := arxivPattern.FindStringSubmatch(stem); sub != nil {
		m.ArxivID = sub[1]
		m.ArxivVersion = sub[2]
	}

	cleaned := numericPrefix.ReplaceAllString(stem, "")
	cleaned = leadingArxivID.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	cleaned = strings.TrimSpace(spaceRun.ReplaceAllString(cleaned, " "))

	m.Title = titleCase(cleaned)
	if m.Title == "" {
		m.Title = stem
	}
	return m
}

// titleCase upper-cases the first letter of every space-separated word and
// lower-cases the rest.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
