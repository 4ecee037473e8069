// Package app builds the long-lived services each command needs from a
// loaded config. Services are created on first use and closed together.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/api"
	"github.com/JakeFAU/formharvest/internal/config"
	collyfetcher "github.com/JakeFAU/formharvest/internal/fetcher/colly"
	"github.com/JakeFAU/formharvest/internal/harvest"
	hashsha256 "github.com/JakeFAU/formharvest/internal/hash/sha256"
	"github.com/JakeFAU/formharvest/internal/id/uuid"
	"github.com/JakeFAU/formharvest/internal/ocr"
	"github.com/JakeFAU/formharvest/internal/ocr/tesseract"
	"github.com/JakeFAU/formharvest/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/formharvest/internal/publisher/pubsub"
	"github.com/JakeFAU/formharvest/internal/querygen"
	"github.com/JakeFAU/formharvest/internal/querygen/openai"
	"github.com/JakeFAU/formharvest/internal/raster"
	"github.com/JakeFAU/formharvest/internal/search"
	"github.com/JakeFAU/formharvest/internal/search/duckduckgo"
	"github.com/JakeFAU/formharvest/internal/search/serpapi"
	"github.com/JakeFAU/formharvest/internal/storage"
	"github.com/JakeFAU/formharvest/internal/storage/gcs"
	"github.com/JakeFAU/formharvest/internal/storage/local"
	"github.com/JakeFAU/formharvest/internal/storage/minio"
	"github.com/JakeFAU/formharvest/internal/validate"
)

// App holds the configuration, the logger and any services opened so far.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	mu      sync.Mutex
	ledger  harvest.Ledger
	closers []func() error
}

// New returns an App. Nothing is opened until a service is requested.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Ledger opens the configured ledger once and creates its table.
func (a *App) Ledger(ctx context.Context) (harvest.Ledger, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ledger != nil {
		return a.ledger, nil
	}
	ledger, err := storage.OpenLedger(ctx, a.cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a.logger.Info("ledger opened",
		zap.Bool("postgres", a.cfg.Ledger.IsPostgres()),
		zap.String("table", a.cfg.Ledger.Table),
	)
	a.ledger = ledger
	a.closers = append(a.closers, ledger.Close)
	return ledger, nil
}

// ContentStore returns the local SHA-256 content-addressable store.
func (a *App) ContentStore() (*local.ContentStore, error) {
	return local.New(a.cfg.Storage, hashsha256.New())
}

// Fetcher builds the concurrent downloader over the content store.
func (a *App) Fetcher() (*collyfetcher.Fetcher, error) {
	store, err := a.ContentStore()
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: a.cfg.Fetch.PerHostRPS,
		Burst:      a.cfg.Fetch.PerHostBurst,
	})
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout,
		MaxBodyBytes:  a.cfg.Fetch.MaxBodyBytes,
		MaxInFlight:   a.cfg.Fetch.MaxInFlight,
	}, store, limiter, a.logger)
}

// Searcher wires SerpAPI as the primary backend when a key is set and
// DuckDuckGo as the fallback when enabled.
func (a *App) Searcher() (*search.Service, error) {
	sc := a.cfg.Search
	var primary, fallback search.Backend
	if sc.SerpAPIKey != "" {
		b, err := serpapi.New(serpapi.Config{
			APIKey:  sc.SerpAPIKey,
			BaseURL: sc.SerpAPIURL,
			Timeout: sc.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("serpapi: %w", err)
		}
		primary = b
	} else {
		a.logger.Info("no search API key configured; structured search disabled")
	}
	if sc.DuckDuckGoEnabled {
		fallback = duckduckgo.New(duckduckgo.Config{
			BaseURL:   sc.DuckDuckGoURL,
			UserAgent: a.cfg.Fetch.UserAgent,
			Timeout:   sc.Timeout,
		})
	}
	if primary == nil && fallback == nil {
		return nil, errors.New("no search backend configured")
	}
	return search.NewService(primary, fallback, a.logger), nil
}

// QueryGenerator returns the topic expander, backed by the chat completion
// client when an API key is set and by templates otherwise.
func (a *App) QueryGenerator() (*querygen.Expander, error) {
	qc := a.cfg.QueryGen
	var backend querygen.Backend
	if qc.OpenAIKey != "" {
		c, err := openai.New(openai.Config{
			APIKey:    qc.OpenAIKey,
			BaseURL:   qc.BaseURL,
			Model:     qc.Model,
			MaxTokens: qc.MaxTokens,
			Timeout:   qc.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("query generator: %w", err)
		}
		backend = c
	}
	return querygen.NewExpander(backend, nil, a.logger), nil
}

// Uploader returns the configured object store relay, or nil when uploads
// are disabled.
func (a *App) Uploader(ctx context.Context) (harvest.Uploader, error) {
	uc := a.cfg.Upload
	if !uc.Enabled() {
		return nil, nil
	}
	switch uc.Provider {
	case config.ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.addCloser(client.Close)
		return gcs.New(client, gcs.Config{ProjectID: uc.GCS.ProjectID}, a.logger)
	default:
		return minio.New(uc.MinIO, a.logger)
	}
}

// Publisher returns a Pub/Sub publisher, or nil when notifications are off.
func (a *App) Publisher(ctx context.Context) (harvest.Publisher, error) {
	if !a.cfg.Notify.Enabled() {
		return nil, nil
	}
	p, err := pubsubpublisher.Dial(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, err
	}
	a.addCloser(p.Close)
	return p, nil
}

// Pipeline assembles the full harvest pipeline.
func (a *App) Pipeline(ctx context.Context) (*harvest.Pipeline, error) {
	ledger, err := a.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	fetcher, err := a.Fetcher()
	if err != nil {
		return nil, err
	}
	searcher, err := a.Searcher()
	if err != nil {
		return nil, err
	}
	queries, err := a.QueryGenerator()
	if err != nil {
		return nil, err
	}
	deps := harvest.Deps{
		Fetcher:  fetcher,
		Ledger:   ledger,
		Searcher: searcher,
		Queries:  queries,
		IDs:      uuid.New(),
	}
	pcfg := harvest.Config{
		QueryResults: a.cfg.Search.QueryResults,
		TopicResults: a.cfg.Search.TopicResults,
	}
	uploader, err := a.Uploader(ctx)
	if err != nil {
		return nil, fmt.Errorf("uploader: %w", err)
	}
	if uploader != nil {
		deps.Uploader = uploader
		pcfg.Bucket = a.cfg.Upload.Bucket
	}
	publisher, err := a.Publisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	if publisher != nil {
		deps.Publisher = publisher
		pcfg.NotifyTopic = a.cfg.Notify.Topic
	}
	return harvest.NewPipeline(pcfg, deps, a.logger)
}

// Validator builds the PDF validator.
func (a *App) Validator() (*validate.Validator, error) {
	vc := a.cfg.Validation
	return validate.New(validate.Config{
		InputDir:      vc.InputDir,
		QuarantineDir: vc.QuarantineDir,
		ReportPath:    vc.Report,
	}, a.logger, validate.QPDF{Binary: vc.QPDFBinary}, validate.Parser{})
}

// Rasterizer builds the page renderer.
func (a *App) Rasterizer() (*raster.Rasterizer, error) {
	rc := a.cfg.Raster
	return raster.New(raster.Config{
		InputDir:  rc.InputDir,
		OutputDir: rc.OutputDir,
		DPI:       rc.DPI,
		Limit:     rc.Limit,
		Binary:    rc.Binary,
	}, nil, a.logger)
}

// OCR builds the OCR runner. engine may be nil to use Tesseract.
func (a *App) OCR(engine ocr.Engine) (*ocr.Runner, error) {
	oc := a.cfg.OCR
	if engine == nil {
		engine = tesseract.New(oc.Languages...)
	}
	return ocr.New(ocr.Config{
		InputDir:  oc.InputDir,
		OutputDir: oc.OutputDir,
		LabelFile: oc.LabelFile,
		Limit:     oc.Limit,
	}, engine, a.logger)
}

// Server builds the HTTP API over the ledger.
func (a *App) Server(ctx context.Context) (*api.Server, error) {
	ledger, err := a.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	return api.NewServer(ledger, a.logger), nil
}

func (a *App) addCloser(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases every opened service in reverse order and flushes the logger.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.ledger = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
