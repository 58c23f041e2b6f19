package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
)

const SearchToolName = "search_internet"

// SearchTool queries the Serper (google.serper.dev) search API.
type SearchTool struct {
	URL     string
	APIKey  string
	Results int
	HTTP    *http.Client
}

var _ Tool = (*SearchTool)(nil)

func NewSearchTool(url, apiKey string) *SearchTool {
	if url == "" {
		url = "https://google.serper.dev/search"
	}
	return &SearchTool{
		URL:     url,
		APIKey:  apiKey,
		Results: 5,
		HTTP:    newHTTPClient(15 * time.Second),
	}
}

func (s *SearchTool) Name() string { return SearchToolName }

func (s *SearchTool) Description() string {
	return "Search the internet for a query and return the top results with title, link and snippet."
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

// SearchResult is one organic hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serperResponse struct {
	Organic []SearchResult `json:"organic"`
}

// Search returns the organic results for query.
func (s *SearchTool) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if s.APIKey == "" {
		return nil, ErrToolDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	client := s.HTTP
	if client == nil {
		client = newHTTPClient(0)
	}

	var out serperResponse
	err := postJSON(ctx, client, s.URL, map[string]string{"X-API-KEY": s.APIKey},
		serperRequest{Q: query, Num: s.Results}, &out)
	if err != nil {
		metrics.ToolCalls.Inc(map[string]string{"tool": SearchToolName, "outcome": "error"})
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	metrics.ToolCalls.Inc(map[string]string{"tool": SearchToolName, "outcome": "ok"})

	if s.Results > 0 && len(out.Organic) > s.Results {
		out.Organic = out.Organic[:s.Results]
	}
	return out.Organic, nil
}

// Run formats Search results as plain text.
func (s *SearchTool) Run(ctx context.Context, query string) (string, error) {
	results, err := s.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	b.WriteString("Search results:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. Title: %s\n   Link: %s\n   Snippet: %s\n", i+1, r.Title, r.Link, r.Snippet)
	}
	return b.String()
}
