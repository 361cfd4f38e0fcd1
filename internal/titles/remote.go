package titles

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/54b3r/paperqa-go/internal/retry"
)

type arxivFeed struct {
	Entries []struct {
		ID    string `xml:"id"`
		Title string `xml:"title"`
	} `xml:"entry"`
}

// arxivTitle returns the title the arXiv API reports for id, or "" when the
// id is unknown.
func (e *Extractor) arxivTitle(ctx context.Context, id string) (string, error) {
	q := url.Values{"id_list": {id}, "max_results": {"1"}}
	body, err := e.get(ctx, e.cfg.ArxivURL+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("titles: arxiv %s: %w", id, err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return "", fmt.Errorf("titles: arxiv %s: decode: %w", id, err)
	}
	for _, entry := range feed.Entries {
		// Unknown ids come back as a single entry pointing at api/errors.
		if strings.Contains(entry.ID, "/api/errors") {
			continue
		}
		if t := collapseSpace(entry.Title); t != "" && !strings.EqualFold(t, "error") {
			return t, nil
		}
	}
	return "", nil
}

type scholarResponse struct {
	Data []struct {
		Title string `json:"title"`
	} `json:"data"`
}

// scholarTitle returns the title of the best Semantic Scholar match for
// guess, or "" when nothing matches.
func (e *Extractor) scholarTitle(ctx context.Context, guess string) (string, error) {
	q := url.Values{"query": {guess}, "limit": {"1"}, "fields": {"title"}}
	body, err := e.get(ctx, e.cfg.ScholarURL+"?"+q.Encode())
	if err != nil {
		return "", fmt.Errorf("titles: semantic scholar: %w", err)
	}

	var resp scholarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("titles: semantic scholar: decode: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return collapseSpace(resp.Data[0].Title), nil
}

func (e *Extractor) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "paperqa-titles")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
