package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover_SortedSupportedOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "b_resnet.txt", "b")
	writeFile(t, dir, "a_attention.md", "a")
	writeFile(t, dir, "notes.docx", "ignored")
	writeFile(t, dir, ".hidden.txt", "ignored")
	writeFile(t, dir, ".cache/x.txt", "ignored")
	writeFile(t, dir, "sub/c_bert.TXT", "c")

	ids, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_attention.md", "b_resnet.txt", "sub/c_bert.TXT"}, ids)
}

func TestDiscover_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := Discover(filepath.Join(t.TempDir(), "Papers"))
	require.Error(t, err)
}

func TestLoad_TextWithTitle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "1706.03762.txt", "\r\nThe dominant sequence transduction models...\r\n")

	titles := TitleMap{"1706.03762.txt": {Title: "Attention Is All You Need", Source: "arxiv_api"}}
	doc, err := Load(context.Background(), dir, "1706.03762.txt", titles)
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", doc.Title)
	assert.Equal(t, FormatText, doc.Format)
	assert.Equal(t, "The dominant sequence transduction models...", doc.Text)
}

func TestLoad_Markdown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# Scaling Laws\n\nLoss scales as a *power law* with compute.\n\n- item one\n- item two\n\n```\nL(C) = a * C^-b\n```\n")

	doc, err := Load(context.Background(), dir, "notes.md", nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Title)
	assert.Contains(t, doc.Text, "Scaling Laws")
	assert.Contains(t, doc.Text, "Loss scales as a power law with compute.")
	assert.Contains(t, doc.Text, "item two")
	assert.Contains(t, doc.Text, "L(C) = a * C^-b")
	assert.NotContains(t, doc.Text, "#")
	assert.NotContains(t, doc.Text, "```")
}

func TestLoad_CorruptPDF(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "broken.pdf", "%PDF-1.4 this is not really a pdf")

	_, err := Load(context.Background(), dir, "broken.pdf", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken.pdf"))
}

func TestLoad_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, t.TempDir(), "x.txt", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTitleMap_Lookup(t *testing.T) {
	t.Parallel()

	m := TitleMap{
		"paper.pdf": {Title: "A Paper"},
		"blank.pdf": {Title: ""},
	}
	e, ok := m.Lookup("sub/paper.pdf")
	assert.True(t, ok)
	assert.Equal(t, "A Paper", e.Title)

	_, ok = m.Lookup("blank.pdf")
	assert.False(t, ok)

	var empty TitleMap
	_, ok = empty.Lookup("paper.pdf")
	assert.False(t, ok)
}

func TestSaveAndLoadTitles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "paper_titles.json")
	in := TitleMap{
		"01_resnet.pdf": {Title: "Deep Residual Learning for Image Recognition", Source: "pdf_metadata"},
		"02_unknown.pdf": {Title: "Unknown", Source: "filename", NeedsManualReview: true},
	}
	require.NoError(t, SaveTitles(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"needs_manual_review": true`)

	out, err := LoadTitles(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	missing, err := LoadTitles(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestCollapseBlankLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\n\nb", collapseBlankLines("a  \n\n\n\nb\n\n"))
}
