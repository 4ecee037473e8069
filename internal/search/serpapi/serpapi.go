// Package serpapi queries Google through SerpAPI's JSON endpoint.
package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/search"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://serpapi.com/search.json"
	DefaultEngine  = "google"
	DefaultTimeout = 20 * time.Second
)

// Config holds the SerpAPI credentials and endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Engine  string
	Timeout time.Duration
}

// Backend implements search.Backend.
type Backend struct {
	client  *http.Client
	baseURL string
	apiKey  string
	engine  string
}

var _ search.Backend = (*Backend)(nil)

type organicResult struct {
	Title         string `json:"title"`
	Link          string `json:"link"`
	SerpAPILink   string `json:"serpapi_link"`
	DisplayedLink string `json:"displayed_link"`
	Snippet       string `json:"snippet"`
}

type response struct {
	OrganicResults   []json.RawMessage `json:"organic_results"`
	RelatedResults   json.RawMessage   `json:"related_results"`
	RelatedQuestions json.RawMessage   `json:"related_questions"`
	InlineLinks      json.RawMessage   `json:"inline_links"`
	Error            string            `json:"error"`
}

// New returns a backend. An empty API key is an error; callers decide
// whether to construct the backend at all.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("serpapi: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Backend{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		engine:  cfg.Engine,
	}, nil
}

// Name identifies the backend in logs and metrics.
func (b *Backend) Name() string { return "serpapi" }

// Search runs query and returns PDF links from the response.
func (b *Backend) Search(ctx context.Context, query string, maxResults int) ([]harvest.SearchResult, error) {
	params := url.Values{}
	params.Set("engine", b.engine)
	params.Set("q", query)
	params.Set("api_key", b.apiKey)
	if maxResults > 0 {
		params.Set("num", strconv.Itoa(maxResults))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi error (status %d): %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi error: %s", parsed.Error)
	}
	return extract(parsed), nil
}

func extract(parsed response) []harvest.SearchResult {
	var out []harvest.SearchResult
	for _, raw := range parsed.OrganicResults {
		var r organicResult
		if err := json.Unmarshal(raw, &r); err != nil {
			continue
		}
		link := firstNonEmpty(r.Link, r.SerpAPILink, r.DisplayedLink)
		if link != "" && search.HasPDFSuffix(link) {
			out = append(out, harvest.SearchResult{Title: r.Title, URL: link, Snippet: r.Snippet})
			continue
		}
		out = append(out, search.ExtractPDFURLs(string(raw))...)
	}
	if len(out) > 0 {
		return out
	}
	for _, raw := range []json.RawMessage{parsed.RelatedResults, parsed.RelatedQuestions, parsed.InlineLinks} {
		if len(raw) == 0 {
			continue
		}
		out = append(out, search.ExtractPDFURLs(string(raw))...)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
