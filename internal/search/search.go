// Package search finds candidate PDF URLs through web search backends.
//
// A Service wraps a structured primary backend and an unstructured fallback.
// Either may be nil; a Service with neither returns no results.
package search

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/metrics"
)

const pdfFilter = " filetype:pdf"

// PDFURLPattern matches absolute http(s) URLs that end in .pdf.
var PDFURLPattern = regexp.MustCompile(`(?i)https?://[^\s'"]+\.pdf`)

// Backend is a single search provider.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]harvest.SearchResult, error)
}

// Service implements harvest.Searcher over a primary and fallback backend.
type Service struct {
	primary  Backend
	fallback Backend
	logger   *zap.Logger
}

// NewService wires the backends. primary and fallback may each be nil.
func NewService(primary, fallback Backend, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{primary: primary, fallback: fallback, logger: logger.Named("search")}
}

// Search appends the PDF file-type filter to query and returns results
// deduplicated by URL. Backend errors are logged, never returned.
func (s *Service) Search(ctx context.Context, query string, maxResults int) ([]harvest.SearchResult, error) {
	q := query + pdfFilter
	if s.primary != nil {
		results, err := s.primary.Search(ctx, q, maxResults)
		switch {
		case err != nil:
			s.logger.Warn("primary search failed, falling back",
				zap.String("backend", s.primary.Name()), zap.String("query", q), zap.Error(err))
			metrics.ObserveFallback("search")
		case len(results) == 0:
			s.logger.Debug("primary search returned nothing, falling back", zap.String("query", q))
			metrics.ObserveFallback("search")
		default:
			metrics.ObserveSearchResults(s.primary.Name(), len(results))
			return Dedupe(results), nil
		}
	}
	if s.fallback == nil {
		return nil, nil
	}
	results, err := s.fallback.Search(ctx, q, maxResults)
	if err != nil {
		s.logger.Warn("fallback search failed",
			zap.String("backend", s.fallback.Name()), zap.String("query", q), zap.Error(err))
		return nil, nil
	}
	metrics.ObserveSearchResults(s.fallback.Name(), len(results))
	return Dedupe(results), nil
}

// ExtractPDFURLs returns a title-less result for every PDF URL found in text.
func ExtractPDFURLs(text string) []harvest.SearchResult {
	matches := PDFURLPattern.FindAllString(text, -1)
	out := make([]harvest.SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, harvest.SearchResult{URL: m})
	}
	return out
}

// HasPDFSuffix reports whether rawURL ends in .pdf, ignoring case.
func HasPDFSuffix(rawURL string) bool {
	return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
}

// Dedupe drops empty and repeated URLs, keeping the first occurrence.
func Dedupe(results []harvest.SearchResult) []harvest.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]harvest.SearchResult, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}
