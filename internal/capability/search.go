package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/semaphore"
)

const (
	defaultSerperURL     = "https://google.serper.dev/search"
	defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	searchTimeout        = 15 * time.Second
	maxSearchBody        = 2 << 20 // 2MB
)

var errEmptyQuery = errors.New("empty search query")

// SearchConfig configures the web-search capability.
type SearchConfig struct {
	// SerperAPIKey selects the Serper JSON API. Without it the DuckDuckGo
	// HTML endpoint is scraped instead.
	SerperAPIKey string
	MaxResults   int
	// MaxConcurrent bounds in-flight requests on the shared HTTP client.
	MaxConcurrent int
	HTTPClient    *http.Client

	// Endpoint overrides, for tests.
	SerperURL     string
	DuckDuckGoURL string
}

// SearchResult is one hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher implements the web-search capability. A weighted semaphore
// serialises access to the shared HTTP client across concurrent roles.
type Searcher struct {
	cfg  SearchConfig
	http *http.Client
	sem  *semaphore.Weighted
}

// NewSearcher creates a Searcher. MaxResults defaults to 5, MaxConcurrent to 2.
func NewSearcher(cfg SearchConfig) *Searcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.SerperURL == "" {
		cfg.SerperURL = defaultSerperURL
	}
	if cfg.DuckDuckGoURL == "" {
		cfg.DuckDuckGoURL = defaultDuckDuckGoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: searchTimeout}
	}
	return &Searcher{
		cfg:  cfg,
		http: client,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

func (s *Searcher) Name() string { return WebSearch }

// Invoke searches for args.Query and formats the hits one per line.
func (s *Searcher) Invoke(ctx context.Context, args Args) (string, error) {
	results, err := s.Search(ctx, args.Query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No web results found.", nil
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- %s: %s (%s)", r.Title, r.Snippet, r.URL)
	}
	return sb.String(), nil
}

// Search runs the query against the configured backend.
func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errEmptyQuery
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	var (
		results []SearchResult
		err     error
	)
	if s.cfg.SerperAPIKey != "" {
		results, err = s.searchSerper(ctx, query)
	} else {
		results, err = s.searchDuckDuckGo(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	if len(results) > s.cfg.MaxResults {
		results = results[:s.cfg.MaxResults]
	}
	return results, nil
}

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Searcher) searchSerper(ctx context.Context, query string) ([]SearchResult, error) {
	body, err := json.Marshal(serperRequest{Q: query, Num: s.cfg.MaxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SerperURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.cfg.SerperAPIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	var sr serperResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSearchBody)).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	out := make([]SearchResult, 0, len(sr.Organic))
	for _, o := range sr.Organic {
		out = append(out, SearchResult{Title: o.Title, URL: o.Link, Snippet: o.Snippet})
	}
	return out, nil
}

func (s *Searcher) searchDuckDuckGo(ctx context.Context, query string) ([]SearchResult, error) {
	u := s.cfg.DuckDuckGoURL + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("User-Agent", "bloodlens/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return nil, fmt.Errorf("parsing search page: %w", err)
	}
	return parseDuckDuckGo(doc), nil
}

// parseDuckDuckGo collects result__a anchors as titles and attaches the
// following result__snippet text to the most recent hit.
func parseDuckDuckGo(root *html.Node) []SearchResult {
	var out []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				out = append(out, SearchResult{
					Title: strings.TrimSpace(textContent(n)),
					URL:   resolveDuckDuckGoLink(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet"):
				if len(out) > 0 {
					out[len(out)-1].Snippet = strings.TrimSpace(textContent(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// resolveDuckDuckGoLink unwraps the /l/?uddg= redirect DuckDuckGo puts
// around result links.
func resolveDuckDuckGoLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
