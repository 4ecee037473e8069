// Package api hosts the read-only HTTP surface used by the serve command:
//   - GET /healthz and /readyz for probes (readyz pings the ledger).
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/documents/{sha256} for ledger lookups.
//   - GET /v1/stats for the ledger row count.
package api
