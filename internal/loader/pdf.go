package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// OpenPDF opens path and returns a reader over it. The caller must close the
// returned file.
func OpenPDF(path string) (*os.File, *pdf.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	r, err := newPDFReader(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, r, nil
}

// newPDFReader wraps pdf.NewReader, which panics on some malformed files.
func newPDFReader(f *os.File, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	return pdf.NewReader(f, size)
}

// ExtractPDF returns the plain text of every page of the PDF at path, pages
// separated by blank lines. Pages whose text cannot be decoded are skipped;
// a PDF with no decodable text at all is an error.
func ExtractPDF(path string) (string, error) {
	f, r, err := OpenPDF(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var (
		b       strings.Builder
		skipped int
	)
	n := r.NumPage()
	for i := 1; i <= n; i++ {
		text, err := pageText(r, i)
		if err != nil {
			skipped++
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("no extractable text in %d page(s) (%d failed)", n, skipped)
	}
	return b.String(), nil
}

// pageText extracts one page, converting decoder panics into errors.
func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("page %d: %v", i, p)
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
