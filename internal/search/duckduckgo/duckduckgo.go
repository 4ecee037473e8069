// Package duckduckgo scrapes the DuckDuckGo HTML results page with colly.
package duckduckgo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/search"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://html.duckduckgo.com/html/"
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; formharvest/0.1)"
)

// Config controls the scraper.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Backend implements search.Backend.
type Backend struct {
	baseURL   string
	collector *colly.Collector
}

var _ search.Backend = (*Backend)(nil)

// New builds the backend and its base collector.
func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(cfg.Timeout)
	return &Backend{baseURL: cfg.BaseURL, collector: c}
}

// Name identifies the backend in logs and metrics.
func (b *Backend) Name() string { return "duckduckgo" }

// Search scrapes one results page for query.
func (b *Backend) Search(ctx context.Context, query string, maxResults int) ([]harvest.SearchResult, error) {
	target, err := url.Parse(b.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := target.Query()
	q.Set("q", query)
	target.RawQuery = q.Encode()

	var (
		mu       sync.Mutex
		out      []harvest.SearchResult
		visitErr error
		status   int
	)
	c := b.collector.Clone()
	c.Context = ctx
	c.OnHTML("div.result", func(e *colly.HTMLElement) {
		link := resolveHref(e.ChildAttr("a.result__a", "href"))
		title := strings.TrimSpace(e.ChildText("a.result__a"))
		snippet := strings.TrimSpace(e.ChildText(".result__snippet"))

		mu.Lock()
		defer mu.Unlock()
		if maxResults > 0 && len(out) >= maxResults {
			return
		}
		if link != "" && search.HasPDFSuffix(link) {
			out = append(out, harvest.SearchResult{Title: title, URL: link, Snippet: snippet})
			return
		}
		out = append(out, search.ExtractPDFURLs(link+" "+title+" "+snippet)...)
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		visitErr = err
	})

	if err := c.Visit(target.String()); err != nil {
		return nil, fmt.Errorf("duckduckgo visit: %w", err)
	}
	if visitErr != nil {
		return nil, fmt.Errorf("duckduckgo response (status %d): %w", status, visitErr)
	}
	if status != 0 && status != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo returned status %d", status)
	}
	return out, nil
}

// resolveHref unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
