package titles

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/paperqa-go/internal/loader"
)

// Line is a run of first-page text set in one font size on one baseline.
// Y grows towards the top of the page.
type Line struct {
	Text string
	Size float64
	X, Y float64
}

type pdfInfo struct {
	metadataTitle string
	lines         []Line
}

// readPDF returns the Info dictionary title and the text lines of the first
// page. A partially readable file returns whatever was recovered.
func readPDF(path string) (info pdfInfo, err error) {
	f, r, err := loader.OpenPDF(path)
	if err != nil {
		return info, err
	}
	defer f.Close()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()

	info.metadataTitle = r.Trailer().Key("Info").Key("Title").Text()
	if r.NumPage() < 1 {
		return info, nil
	}
	page := r.Page(1)
	if page.V.IsNull() {
		return info, nil
	}
	info.lines = groupLines(page.Content().Text)
	return info, nil
}

// groupLines joins consecutive glyph runs that share a baseline and font size.
func groupLines(items []pdf.Text) []Line {
	var (
		out  []Line
		cur  strings.Builder
		line Line
		end  float64
	)
	flush := func() {
		if t := collapseSpace(cur.String()); t != "" {
			line.Text = t
			out = append(out, line)
		}
		cur.Reset()
	}
	for i, it := range items {
		sameLine := i > 0 && math.Abs(it.Y-line.Y) < 1 && math.Abs(it.FontSize-line.Size) < 0.5
		if !sameLine {
			flush()
			line = Line{Size: it.FontSize, X: it.X, Y: it.Y}
		} else if it.X-end > it.FontSize*0.2 {
			cur.WriteByte(' ')
		}
		cur.WriteString(it.S)
		end = it.X + it.W
	}
	flush()
	return out
}

var numericOnly = regexp.MustCompile(`^[\d\s.,]+$`)

// isTitleCandidate rejects lines that cannot be a paper title.
func isTitleCandidate(text string) bool {
	n := utf8.RuneCountInString(text)
	if n <= 15 || n >= 200 {
		return false
	}
	lower := strings.ToLower(text)
	return !numericOnly.MatchString(text) &&
		!strings.HasPrefix(lower, "http") &&
		!strings.HasPrefix(lower, "abstract")
}

// LargestFontTitle guesses the title as the largest-font candidate line,
// preferring the one highest on the page. A following line in the same size
// directly below it is treated as a wrapped continuation.
func LargestFontTitle(lines []Line) (string, bool) {
	best := -1
	for i, l := range lines {
		if !isTitleCandidate(l.Text) {
			continue
		}
		if best < 0 || better(l, lines[best]) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}

	title := lines[best].Text
	prev := lines[best]
	for _, next := range lines[best+1:] {
		if math.Abs(next.Size-prev.Size) >= 0.5 || prev.Y-next.Y <= 0 || prev.Y-next.Y > 2*prev.Size {
			break
		}
		joined := title + " " + next.Text
		if utf8.RuneCountInString(joined) >= 200 {
			break
		}
		title = joined
		prev = next
	}
	return title, true
}

// better orders candidates by font size descending, then position top-down.
func better(a, b Line) bool {
	if c := cmp.Compare(a.Size, b.Size); c != 0 {
		return c > 0
	}
	return a.Y > b.Y
}

// cleanMetadataTitle returns the Info title when it is plausibly a real title.
func cleanMetadataTitle(s string) string {
	t := collapseSpace(s)
	n := utf8.RuneCountInString(t)
	if n <= 10 || n >= 200 {
		return ""
	}
	// Producers often leave the source file name behind.
	lower := strings.ToLower(t)
	if slices.ContainsFunc([]string{".dvi", ".tex", ".doc", ".pdf", "untitled"}, func(s string) bool {
		return strings.Contains(lower, s)
	}) {
		return ""
	}
	return t
}
