package harvest

import "context"

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// ContentStore persists bytes under a name derived from their digest.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (StoredObject, error)
}

// Fetcher downloads a batch of URLs. The returned slice has the same length
// and order as urls; failed URLs are nil.
type Fetcher interface {
	FetchMany(ctx context.Context, urls []string) ([]*FetchResult, error)
}

// Ledger records document provenance keyed by content hash.
type Ledger interface {
	Init(ctx context.Context) error
	// Insert reports whether a new row was written; a duplicate hash is not an error.
	Insert(ctx context.Context, doc Document) (bool, error)
	// FindByHash returns ErrNotFound when no row matches.
	FindByHash(ctx context.Context, sha256 string) (Document, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Searcher returns PDF candidates for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// QueryGenerator expands topics into search queries.
type QueryGenerator interface {
	Generate(ctx context.Context, topics []string) []string
}

// Uploader relays stored files to an object store. Upload failures are
// reported through the boolean only.
type Uploader interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, key, localPath string) bool
	ObjectURI(bucket, key string) string
}

// Publisher pushes document events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
