package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// TitleEntry is one record of the title map written by `paperqa titles`.
type TitleEntry struct {
	Title string `json:"title"`
	// Source names the strategy that produced the title
	// (arxiv_api, pdf_metadata, largest_font, semantic_scholar, filename).
	Source            string `json:"source"`
	NeedsManualReview bool   `json:"needs_manual_review"`
}

// TitleMap maps corpus file names to their titles.
type TitleMap map[string]TitleEntry

// Lookup finds the entry for id, trying the full relative path first and then
// the base name, since the title map is keyed by file name.
func (m TitleMap) Lookup(id string) (TitleEntry, bool) {
	if m == nil {
		return TitleEntry{}, false
	}
	if e, ok := m[id]; ok && e.Title != "" {
		return e, true
	}
	if e, ok := m[filepath.Base(filepath.FromSlash(id))]; ok && e.Title != "" {
		return e, true
	}
	return TitleEntry{}, false
}

// LoadTitles reads a title map from path. A missing file yields an empty map.
func LoadTitles(path string) (TitleMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return TitleMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loader: read titles %s: %w", path, err)
	}
	m := TitleMap{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("loader: parse titles %s: %w", path, err)
	}
	return m, nil
}

// SaveTitles writes m to path as indented JSON, keys sorted, via a temp file
// and rename so readers never see a partial file.
func SaveTitles(path string, m TitleMap) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("loader: encode titles: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("loader: create %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("loader: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("loader: rename %s: %w", tmp, err)
	}
	return nil
}
