// Package loader discovers the paper corpus on disk and extracts plain text
// from each file. PDFs go through ledongthuc/pdf, Markdown through goldmark's
// AST, and .txt files are read as-is.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Format is a supported corpus file type.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// formats maps lower-cased file extensions to their Format.
var formats = map[string]Format{
	".pdf":      FormatPDF,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
}

// FormatOf returns the Format for name, or "" if the extension is unsupported.
func FormatOf(name string) Format {
	return formats[strings.ToLower(filepath.Ext(name))]
}

// Document is one corpus file with its extracted text.
type Document struct {
	// ID is the slash-separated path relative to the corpus directory.
	// It doubles as the document's stable identifier in the index.
	ID     string
	Path   string
	Format Format
	// Title comes from the title map; empty when the file has no entry.
	Title string
	Text  string
}

// Discover returns the IDs of every supported file under dir, sorted so the
// corpus order (and therefore chunk insertion sequence) is deterministic.
// Hidden files and directories are skipped.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: corpus %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("loader: corpus %s is not a directory", dir)
	}

	var ids []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || FormatOf(d.Name()) == "" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loader: walk %s: %w", dir, err)
	}

	slices.Sort(ids)
	return ids, nil
}

// Load reads the document id from the corpus directory dir and extracts its
// text. titles may be nil.
func Load(ctx context.Context, dir, id string, titles TitleMap) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, filepath.FromSlash(id))
	format := FormatOf(id)

	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = ExtractPDF(path)
	case FormatMarkdown:
		text, err = extractMarkdownFile(path)
	case FormatText:
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	default:
		return nil, fmt.Errorf("loader: %s: unsupported file type", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", id, err)
	}

	doc := &Document{
		ID:     id,
		Path:   path,
		Format: format,
		Text:   normalize(text),
	}
	if e, ok := titles.Lookup(id); ok {
		doc.Title = e.Title
	}
	return doc, nil
}

// normalize drops NUL bytes and carriage returns left by PDF extraction and
// trims surrounding whitespace.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
