package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/metrics"
)

const (
	defaultQueryResults = 30
	defaultTopicResults = 20
)

// Config controls search breadth and the optional relays.
type Config struct {
	// QueryResults is the result count requested for a single explicit query.
	QueryResults int
	// TopicResults is the result count requested per generated query.
	TopicResults int
	// Bucket enables the upload relay when non-empty and an Uploader is set.
	Bucket string
	// NotifyTopic enables document events when non-empty and a Publisher is set.
	NotifyTopic string
}

// Deps bundles the collaborators a Pipeline needs. Fetcher and Ledger are
// required; the rest may be nil when the corresponding feature is unused.
type Deps struct {
	Fetcher   Fetcher
	Ledger    Ledger
	Searcher  Searcher
	Queries   QueryGenerator
	Uploader  Uploader
	Publisher Publisher
	IDs       IDGenerator
}

// Request describes one harvest run.
type Request struct {
	Query  string
	Smart  bool
	Topics []string
	Limit  int
}

// Pipeline runs search, download, record and relay for one batch at a time.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewPipeline validates dependencies and returns a Pipeline.
func NewPipeline(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.QueryResults <= 0 {
		cfg.QueryResults = defaultQueryResults
	}
	if cfg.TopicResults <= 0 {
		cfg.TopicResults = defaultTopicResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger.Named("harvest")}, nil
}

// Run resolves the request into candidates and ingests them.
func (p *Pipeline) Run(ctx context.Context, req Request) (Summary, error) {
	if p.deps.Searcher == nil {
		return Summary{}, errors.New("searcher is required to run a harvest")
	}
	var candidates []SearchResult
	switch {
	case req.Smart:
		if p.deps.Queries == nil {
			return Summary{}, errors.New("query generator is required for topic harvests")
		}
		queries := p.deps.Queries.Generate(ctx, req.Topics)
		p.logger.Info("generated queries", zap.Int("topics", len(req.Topics)), zap.Int("queries", len(queries)))
		candidates = p.CollectCandidates(ctx, queries, p.cfg.TopicResults, req.Limit)
	case strings.TrimSpace(req.Query) != "":
		candidates = p.CollectCandidates(ctx, []string{req.Query}, p.cfg.QueryResults, req.Limit)
	default:
		return Summary{}, errors.New("a query or topic expansion is required")
	}
	p.logger.Info("collected candidate URLs", zap.Int("candidates", len(candidates)))
	return p.Ingest(ctx, candidates)
}

// CollectCandidates searches each query in order and aggregates results with
// unique URLs until limit is reached. A limit <= 0 means no cap. Search
// failures are logged and skipped.
func (p *Pipeline) CollectCandidates(ctx context.Context, queries []string, perQuery, limit int) []SearchResult {
	seen := make(map[string]struct{})
	var out []SearchResult
	for _, q := range queries {
		if ctx.Err() != nil {
			break
		}
		p.logger.Debug("searching", zap.String("query", q))
		results, err := p.deps.Searcher.Search(ctx, q, perQuery)
		if err != nil {
			p.logger.Warn("search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		for _, r := range results {
			if r.URL == "" {
				continue
			}
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// Ingest downloads the candidates and records each stored document. Per-URL
// failures are counted and skipped. A content store failure aborts the run
// after the successful URLs of the batch have been recorded; a ledger
// failure aborts immediately.
func (p *Pipeline) Ingest(ctx context.Context, candidates []SearchResult) (Summary, error) {
	summary := Summary{RunID: p.newRunID(), Candidates: len(candidates)}
	logger := p.logger.With(zap.String("run_id", summary.RunID))

	uploading := p.deps.Uploader != nil && p.cfg.Bucket != ""
	if uploading {
		if err := p.deps.Uploader.EnsureBucket(ctx, p.cfg.Bucket); err != nil {
			return summary, fmt.Errorf("ensure bucket %q: %w", p.cfg.Bucket, err)
		}
	}

	urls := make([]string, len(candidates))
	for i, c := range candidates {
		urls[i] = c.URL
	}
	results, fetchErr := p.deps.Fetcher.FetchMany(ctx, urls)
	if len(results) != len(candidates) {
		if fetchErr != nil {
			return summary, fmt.Errorf("download batch: %w", fetchErr)
		}
		return summary, fmt.Errorf("fetcher returned %d results for %d urls", len(results), len(candidates))
	}

	for i, res := range results {
		if res == nil {
			summary.Failed++
			continue
		}
		summary.Fetched++
		if res.Skipped {
			summary.AlreadyOnDisk++
		}
		filename := res.Filename()

		objectURI := ""
		if uploading {
			if p.deps.Uploader.Upload(ctx, p.cfg.Bucket, filename, res.Path) {
				summary.Uploaded++
				objectURI = p.deps.Uploader.ObjectURI(p.cfg.Bucket, filename)
				metrics.ObserveUpload("ok")
				logger.Info("uploaded document", zap.String("bucket", p.cfg.Bucket), zap.String("key", filename))
			} else {
				summary.UploadFailed++
				metrics.ObserveUpload("failed")
				logger.Warn("upload failed", zap.String("bucket", p.cfg.Bucket), zap.String("key", filename))
			}
		}

		doc := Document{
			Filename: filename,
			URL:      candidates[i].URL,
			SHA256:   res.SHA256,
			Title:    candidates[i].Title,
			Sector:   ClassifySector(candidates[i].URL),
			Size:     res.Size,
		}
		inserted, err := p.deps.Ledger.Insert(ctx, doc)
		if err != nil {
			metrics.ObserveLedgerInsert("error")
			return summary, fmt.Errorf("record %s: %w", doc.URL, err)
		}
		if !inserted {
			summary.Duplicates++
			metrics.ObserveLedgerInsert("duplicate")
			logger.Debug("document already recorded", zap.String("sha256", doc.SHA256), zap.String("url", doc.URL))
			continue
		}
		summary.Inserted++
		metrics.ObserveLedgerInsert("inserted")
		logger.Info("recorded document",
			zap.String("filename", doc.Filename),
			zap.String("url", doc.URL),
			zap.String("sector", doc.Sector),
			zap.Int64("size", doc.Size),
		)
		if p.notify(ctx, logger, summary.RunID, doc, objectURI) {
			summary.Published++
		}
	}

	if fetchErr != nil {
		return summary, fmt.Errorf("download batch: %w", fetchErr)
	}
	logger.Info("ingest finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("fetched", summary.Fetched),
		zap.Int("failed", summary.Failed),
		zap.Int("inserted", summary.Inserted),
		zap.Int("duplicates", summary.Duplicates),
	)
	return summary, nil
}

func (p *Pipeline) notify(ctx context.Context, logger *zap.Logger, runID string, doc Document, objectURI string) bool {
	if p.deps.Publisher == nil || p.cfg.NotifyTopic == "" {
		return false
	}
	event := DocumentEvent{
		RunID:     runID,
		SHA256:    doc.SHA256,
		Filename:  doc.Filename,
		URL:       doc.URL,
		Sector:    doc.Sector,
		Size:      doc.Size,
		ObjectURI: objectURI,
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.NotifyTopic, event)
	if err != nil {
		logger.Warn("publish document event failed", zap.String("sha256", doc.SHA256), zap.Error(err))
		return false
	}
	logger.Debug("published document event", zap.String("message_id", id))
	return true
}

func (p *Pipeline) newRunID() string {
	if p.deps.IDs == nil {
		return ""
	}
	id, err := p.deps.IDs.NewID()
	if err != nil {
		p.logger.Warn("generate run id", zap.Error(err))
		return ""
	}
	return id
}
