package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
)

const ScrapeToolName = "scrape_website"

// ScrapeTool downloads a page and returns its visible text.
type ScrapeTool struct {
	MaxChars int
	HTTP     *http.Client
}

var _ Tool = (*ScrapeTool)(nil)

func NewScrapeTool() *ScrapeTool {
	return &ScrapeTool{
		MaxChars: 4000,
		HTTP:     newHTTPClient(15 * time.Second),
	}
}

func (s *ScrapeTool) Name() string { return ScrapeToolName }

func (s *ScrapeTool) Description() string {
	return "Read the text content of a website given its URL."
}

func (s *ScrapeTool) Run(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}
	client := s.HTTP
	if client == nil {
		client = newHTTPClient(0)
	}

	body, ctype, err := get(ctx, client, u.String())
	if err != nil {
		metrics.ToolCalls.Inc(map[string]string{"tool": ScrapeToolName, "outcome": "error"})
		return "", fmt.Errorf("scrape %s: %w", u, err)
	}
	metrics.ToolCalls.Inc(map[string]string{"tool": ScrapeToolName, "outcome": "ok"})

	var text string
	if strings.HasPrefix(ctype, "text/plain") {
		text = collapseSpaces(string(body))
	} else {
		text, err = ExtractText(bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("scrape %s: %w", u, err)
		}
	}
	if s.MaxChars > 0 {
		text = truncate(text, s.MaxChars)
	}
	return text, nil
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
}

// ExtractText walks an HTML document and returns its visible text, one block per line.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = collapseSpaces(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
