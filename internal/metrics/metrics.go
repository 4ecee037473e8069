// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetches_total",
			Help: "Total number of download attempts, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetch_bytes_total",
			Help: "Total number of accepted document bytes, labeled by site.",
		},
		[]string{"site"},
	)

	ledgerInsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_ledger_inserts_total",
			Help: "Ledger insert attempts, labeled by result.",
		},
		[]string{"result"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_uploads_total",
			Help: "Upload relay attempts, labeled by result.",
		},
		[]string{"result"},
	)

	searchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_search_results_total",
			Help: "PDF candidates returned by search backends, labeled by backend.",
		},
		[]string{"backend"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fallbacks_total",
			Help: "Times a primary backend was bypassed for its fallback, labeled by component.",
		},
		[]string{"component"},
	)

	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_validations_total",
			Help: "PDF validation outcomes, labeled by status.",
		},
		[]string{"status"},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Pages produced by the auxiliary stages, labeled by stage.",
		},
		[]string{"stage"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_rate_limit_delays_seconds",
			Help:    "Histogram of per-host politeness wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one download attempt.
func ObserveFetch(rawURL, outcome string, bytesFetched int) {
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveLedgerInsert records an insert result: inserted, duplicate or error.
func ObserveLedgerInsert(result string) {
	ledgerInsertsTotal.WithLabelValues(result).Inc()
}

// ObserveUpload records an upload relay result.
func ObserveUpload(result string) {
	uploadsTotal.WithLabelValues(result).Inc()
}

// ObserveSearchResults adds the candidates returned by a backend.
func ObserveSearchResults(backend string, n int) {
	searchResultsTotal.WithLabelValues(backend).Add(float64(n))
}

// ObserveFallback counts a switch to a fallback backend.
func ObserveFallback(component string) {
	fallbacksTotal.WithLabelValues(component).Inc()
}

// ObserveValidation records a validation status.
func ObserveValidation(status string) {
	validationsTotal.WithLabelValues(status).Inc()
}

// ObservePages adds pages produced by an auxiliary stage.
func ObservePages(stage string, n int) {
	pagesTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
