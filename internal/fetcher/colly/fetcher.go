// Package collyfetcher implements the batch document downloader using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/metrics"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 64 << 20
	defaultUserAgent    = "formharvest/0.1"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
	// MaxInFlight caps concurrent downloads; zero dispatches every URL at once.
	MaxInFlight int
}

// Waiter delays a request for politeness.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements harvest.Fetcher using a shared Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	store         harvest.ContentStore
	limiter       Waiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type download struct {
	status      int
	contentType string
	body        []byte
	err         error
}

// New builds a Fetcher that writes accepted documents to store. limiter may be nil.
func New(cfg Config, store harvest.ContentStore, limiter Waiter, logger *zap.Logger) (*Fetcher, error) {
	if store == nil {
		return nil, errors.New("content store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	// The transport and timeout live on the backend shared by every clone.
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		store:         store,
		limiter:       limiter,
		logger:        logger.Named("fetcher"),
	}, nil
}

// FetchMany downloads every URL concurrently. The result slice matches urls
// by index; entries are nil for URLs that failed or were not PDFs. Content
// store failures leave a nil entry and are also returned joined in the error.
func (f *Fetcher) FetchMany(ctx context.Context, urls []string) ([]*harvest.FetchResult, error) {
	results := make([]*harvest.FetchResult, len(urls))
	var (
		g         errgroup.Group
		mu        sync.Mutex
		storeErrs []error
	)
	if f.cfg.MaxInFlight > 0 {
		g.SetLimit(f.cfg.MaxInFlight)
	}
	for i, rawURL := range urls {
		g.Go(func() error {
			res, err := f.fetchOne(ctx, rawURL)
			if err != nil {
				if errors.Is(err, harvest.ErrStorage) {
					mu.Lock()
					storeErrs = append(storeErrs, fmt.Errorf("%s: %w", rawURL, err))
					mu.Unlock()
				}
				f.logger.Debug("download skipped", zap.String("url", rawURL), zap.Error(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(storeErrs...)
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string) (*harvest.FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			metrics.ObserveFetch(rawURL, "error", 0)
			return nil, err
		}
	}
	dl, err := f.get(ctx, rawURL)
	if err != nil {
		metrics.ObserveFetch(rawURL, "error", 0)
		return nil, err
	}
	if dl.status < 200 || dl.status > 299 {
		metrics.ObserveFetch(rawURL, "status", 0)
		return nil, fmt.Errorf("unexpected status %d", dl.status)
	}
	if !IsPDF(dl.contentType, rawURL) {
		metrics.ObserveFetch(rawURL, "rejected", 0)
		return nil, fmt.Errorf("content type %q is not a pdf", dl.contentType)
	}
	if len(dl.body) == 0 {
		metrics.ObserveFetch(rawURL, "rejected", 0)
		return nil, errors.New("empty body")
	}
	if len(dl.body) >= f.cfg.MaxBodyBytes {
		metrics.ObserveFetch(rawURL, "rejected", 0)
		return nil, fmt.Errorf("body reached the %d byte limit", f.cfg.MaxBodyBytes)
	}

	obj, err := f.store.Put(ctx, dl.body)
	if err != nil {
		metrics.ObserveFetch(rawURL, "store_error", 0)
		return nil, err
	}
	metrics.ObserveFetch(rawURL, "accepted", len(dl.body))
	return &harvest.FetchResult{
		Path:    obj.Path,
		SHA256:  obj.SHA256,
		Size:    obj.Size,
		URL:     rawURL,
		Skipped: obj.Skipped,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (download, error) {
	var dl download
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, &dl)
	if err := f.runCollector(ctx, collector, rawURL, &dl); err != nil {
		return download{}, err
	}
	return dl, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, dl *download) {
	hooks.OnResponse(func(r *colly.Response) {
		dl.status = r.StatusCode
		if r.Headers != nil {
			dl.contentType = r.Headers.Get("Content-Type")
		}
		dl.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		dl.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, dl *download) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if dl.err != nil {
			return fmt.Errorf("colly response failed: %w", dl.err)
		}
		return nil
	}
}

// IsPDF reports whether a response should be treated as a PDF: either the
// content type mentions pdf or the requested URL ends in .pdf.
func IsPDF(contentType, rawURL string) bool {
	if strings.Contains(strings.ToLower(contentType), "pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
