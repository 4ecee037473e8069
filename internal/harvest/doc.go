// Package harvest coordinates the PDF acquisition pipeline: it turns topics or
// a single query into candidate URLs, fetches and content-addresses the
// documents, records provenance in the ledger keyed by SHA-256, and relays
// stored files to an optional bucket and notification topic.
package harvest
