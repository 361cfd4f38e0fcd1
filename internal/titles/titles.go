// Package titles resolves the human-readable title of every paper in the
// corpus and writes them to the title map consumed by `paperqa index`.
//
// Strategies are tried in order of reliability: the arXiv API for files named
// after an arXiv id, the PDF Info dictionary, the largest-font line of the
// first page (verified against Semantic Scholar), and finally the cleaned
// file name. Entries whose source is "manual" are never overwritten.
package titles

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/paperqa-go/internal/ingestion"
	"github.com/54b3r/paperqa-go/internal/loader"
	"github.com/54b3r/paperqa-go/internal/logging"
)

// Source names the strategy that produced a title.
type Source string

const (
	SourceArxiv           Source = "arxiv_api"
	SourcePDFMetadata     Source = "pdf_metadata"
	SourceLargestFont     Source = "largest_font"
	SourceSemanticScholar Source = "semantic_scholar"
	SourceFilename        Source = "filename"
	// SourceManual marks an entry edited by hand.
	SourceManual Source = "manual"
)

// Sources lists every automatic source in strategy order.
var Sources = []Source{SourceArxiv, SourcePDFMetadata, SourceLargestFont, SourceSemanticScholar, SourceFilename}

const (
	defaultArxivURL   = "http://export.arxiv.org/api/query"
	defaultScholarURL = "https://api.semanticscholar.org/graph/v1/paper/search"
)

// Config holds the configuration for an Extractor.
type Config struct {
	// Offline skips the arXiv and Semantic Scholar lookups.
	Offline bool

	// ArxivURL is the arXiv query endpoint. Defaults to the public API.
	ArxivURL string

	// ScholarURL is the Semantic Scholar search endpoint.
	ScholarURL string

	// RequestsPerSecond throttles remote lookups. Defaults to 2.
	RequestsPerSecond float64

	// Timeout bounds each remote lookup. Defaults to 10s.
	Timeout time.Duration
}

// Extractor resolves paper titles.
type Extractor struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New returns an Extractor for cfg. A nil cfg means online with defaults.
func New(cfg *Config) *Extractor {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ArxivURL == "" {
		c.ArxivURL = defaultArxivURL
	}
	if c.ScholarURL == "" {
		c.ScholarURL = defaultScholarURL
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return &Extractor{
		cfg:     c,
		client:  &http.Client{Timeout: c.Timeout},
		limiter: rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1),
	}
}

// Extract resolves the title of the corpus file id located at path. It never
// fails: the file name is the last resort.
func (e *Extractor) Extract(ctx context.Context, path, id string) loader.TitleEntry {
	log := logging.FromContext(ctx).With(slog.String("doc_id", id))
	meta := ingestion.InferMetadata(id)

	if meta.ArxivID != "" && !e.cfg.Offline {
		title, err := e.arxivTitle(ctx, meta.ArxivID)
		switch {
		case err != nil:
			log.Warn("titles: arxiv lookup failed", slog.String("arxiv_id", meta.ArxivID), slog.Any("error", err))
		case title != "":
			return loader.TitleEntry{Title: title, Source: string(SourceArxiv)}
		}
	}

	if loader.FormatOf(id) == loader.FormatPDF {
		info, err := readPDF(path)
		if err != nil {
			log.Warn("titles: cannot read pdf", slog.Any("error", err))
		}
		if t := cleanMetadataTitle(info.metadataTitle); t != "" {
			return loader.TitleEntry{Title: t, Source: string(SourcePDFMetadata)}
		}
		if guess, ok := LargestFontTitle(info.lines); ok {
			if !e.cfg.Offline {
				verified, err := e.scholarTitle(ctx, guess)
				if err != nil {
					log.Debug("titles: semantic scholar lookup failed", slog.Any("error", err))
				}
				if verified != "" {
					return loader.TitleEntry{Title: verified, Source: string(SourceSemanticScholar)}
				}
			}
			return loader.TitleEntry{Title: guess, Source: string(SourceLargestFont)}
		}
	}

	return loader.TitleEntry{Title: meta.Title, Source: string(SourceFilename), NeedsManualReview: true}
}

// Summary counts the sources of an extraction run.
type Summary struct {
	Total       int
	Kept        int
	NeedsReview int
	Counts      map[Source]int
}

// ExtractAll resolves a title for every supported file in dir. Entries of
// existing with source "manual" are kept as they are. progress may be nil.
func (e *Extractor) ExtractAll(ctx context.Context, dir string, existing loader.TitleMap, progress func(id string, entry loader.TitleEntry)) (loader.TitleMap, *Summary, error) {
	ids, err := loader.Discover(dir)
	if err != nil {
		return nil, nil, err
	}

	out := make(loader.TitleMap, len(ids))
	sum := &Summary{Total: len(ids), Counts: make(map[Source]int, len(Sources))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		entry, ok := existing[id]
		if ok && Source(entry.Source) == SourceManual {
			sum.Kept++
		} else {
			entry = e.Extract(ctx, filepath.Join(dir, filepath.FromSlash(id)), id)
			sum.Counts[Source(entry.Source)]++
		}
		if entry.NeedsManualReview {
			sum.NeedsReview++
		}
		out[id] = entry
		if progress != nil {
			progress(id, entry)
		}
	}
	return out, sum, nil
}

// Percent returns the share of the run produced by src.
func (s *Summary) Percent(src Source) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Counts[src]) * 100 / float64(s.Total)
}

func (e *Extractor) wait(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("titles: rate limit: %w", err)
	}
	return nil
}
