// Package querygen turns topical areas into PDF search queries.
package querygen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/metrics"
)

const queryCount = 8

var templates = []string{
	`%s filetype:pdf "application form"`,
	`%s filetype:pdf "application"`,
	`%s filetype:pdf "form"`,
	`%s filetype:pdf "claim form"`,
}

// Templates expands each topic with a fixed set of query templates.
type Templates struct{}

var _ harvest.QueryGenerator = Templates{}

// Generate returns four queries per topic, deduplicated in order.
func (Templates) Generate(_ context.Context, topics []string) []string {
	out := make([]string, 0, len(topics)*len(templates))
	for _, topic := range topics {
		for _, tpl := range templates {
			out = append(out, fmt.Sprintf(tpl, topic))
		}
	}
	return dedupe(out)
}

// Backend produces free text for a prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Expander asks a text-generation backend for queries and falls back when
// the backend is absent, fails, or returns nothing usable.
type Expander struct {
	backend  Backend
	fallback harvest.QueryGenerator
	logger   *zap.Logger
}

var _ harvest.QueryGenerator = (*Expander)(nil)

// NewExpander wires backend (may be nil) over fallback (Templates when nil).
func NewExpander(backend Backend, fallback harvest.QueryGenerator, logger *zap.Logger) *Expander {
	if fallback == nil {
		fallback = Templates{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{backend: backend, fallback: fallback, logger: logger.Named("querygen")}
}

// Generate implements harvest.QueryGenerator.
func (e *Expander) Generate(ctx context.Context, topics []string) []string {
	if e.backend == nil {
		return e.fallback.Generate(ctx, topics)
	}
	text, err := e.backend.Complete(ctx, Prompt(topics))
	if err != nil {
		e.logger.Warn("query generation failed, falling back to templates", zap.Error(err))
		metrics.ObserveFallback("querygen")
		return e.fallback.Generate(ctx, topics)
	}
	queries := ParseQueries(text)
	if len(queries) == 0 {
		e.logger.Warn("query generation returned no pdf queries, falling back to templates")
		metrics.ObserveFallback("querygen")
		return e.fallback.Generate(ctx, topics)
	}
	e.logger.Debug("generated queries", zap.Int("count", len(queries)))
	return queries
}

// Prompt builds the instruction sent to the backend.
func Prompt(topics []string) string {
	return fmt.Sprintf(
		"Generate %d concise search queries for finding PDF forms online for these topics: %s. "+
			"Return one query per line and include filetype:pdf in each.",
		queryCount, strings.Join(topics, ", "))
}

// ParseQueries keeps the lines of text that mention filetype:pdf, stripping
// list markers.
func ParseQueries(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "- "))
		if line == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), "filetype:pdf") {
			out = append(out, line)
		}
	}
	return dedupe(out)
}

func dedupe(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
