package harvest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/harvest"
	memorypublisher "github.com/JakeFAU/formharvest/internal/publisher/memory"
	"github.com/JakeFAU/formharvest/internal/storage/memory"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]harvest.SearchResult
	errs    map[string]error
	calls   []string
	maxes   []int
}

func (f *fakeSearcher) Search(_ context.Context, query string, maxResults int) ([]harvest.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, query)
	f.maxes = append(f.maxes, maxResults)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

// fakeFetcher returns one result per URL from byURL; unknown URLs fail.
type fakeFetcher struct {
	byURL map[string]*harvest.FetchResult
	err   error
	short bool
}

func (f *fakeFetcher) FetchMany(_ context.Context, urls []string) ([]*harvest.FetchResult, error) {
	if f.short {
		return nil, f.err
	}
	out := make([]*harvest.FetchResult, len(urls))
	for i, u := range urls {
		if r, ok := f.byURL[u]; ok {
			cp := *r
			cp.URL = u
			out[i] = &cp
		}
	}
	return out, f.err
}

type fakeQueries struct {
	queries []string
}

func (f fakeQueries) Generate(context.Context, []string) []string { return f.queries }

type fakeUploader struct {
	ensureErr error
	fail      map[string]bool
	uploaded  []string
}

func (f *fakeUploader) EnsureBucket(context.Context, string) error { return f.ensureErr }

func (f *fakeUploader) Upload(_ context.Context, bucket, key, _ string) bool {
	if f.fail[key] {
		return false
	}
	f.uploaded = append(f.uploaded, bucket+"/"+key)
	return true
}

func (f *fakeUploader) ObjectURI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-1", nil }

type failingLedger struct {
	*memory.Ledger
}

func (failingLedger) Insert(context.Context, harvest.Document) (bool, error) {
	return false, errors.New("disk full")
}

func stored(name, digest string, size int64) *harvest.FetchResult {
	return &harvest.FetchResult{Path: "/cas/" + name, SHA256: digest, Size: size}
}

func newPipeline(t *testing.T, cfg harvest.Config, deps harvest.Deps) *harvest.Pipeline {
	t.Helper()
	p, err := harvest.NewPipeline(cfg, deps, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewPipelineRequiresFetcherAndLedger(t *testing.T) {
	t.Parallel()

	_, err := harvest.NewPipeline(harvest.Config{}, harvest.Deps{Ledger: memory.NewLedger("")}, nil)
	require.Error(t, err)
	_, err = harvest.NewPipeline(harvest.Config{}, harvest.Deps{Fetcher: &fakeFetcher{}}, nil)
	require.Error(t, err)
}

func TestRunSingleQuery(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]harvest.SearchResult{
		"w9": {
			{Title: "W-9", URL: "https://www.irs.gov/fw9.pdf"},
			{Title: "Claim", URL: "https://myhealth.example.com/claim.pdf"},
			{Title: "Dead", URL: "https://dead.example.com/x.pdf"},
		},
	}}
	fetcher := &fakeFetcher{byURL: map[string]*harvest.FetchResult{
		"https://www.irs.gov/fw9.pdf":           stored("aaaa.pdf", "aa", 10),
		"https://myhealth.example.com/claim.pdf": stored("bbbb.pdf", "bb", 20),
	}}
	ledger := memory.NewLedger(harvest.DuplicateIgnore)
	p := newPipeline(t, harvest.Config{}, harvest.Deps{
		Fetcher: fetcher, Ledger: ledger, Searcher: searcher, IDs: fixedIDs{},
	})

	sum, err := p.Run(context.Background(), harvest.Request{Query: "w9", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 3, sum.Candidates)
	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, []int{30}, searcher.maxes)

	doc, err := ledger.FindByHash(context.Background(), "aa")
	require.NoError(t, err)
	assert.Equal(t, "aaaa.pdf", doc.Filename)
	assert.Equal(t, "W-9", doc.Title)
	assert.Equal(t, "government", doc.Sector)
	assert.Equal(t, int64(10), doc.Size)

	doc, err = ledger.FindByHash(context.Background(), "bb")
	require.NoError(t, err)
	assert.Equal(t, "health", doc.Sector)
}

func TestRunRequiresQueryOrSmart(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, harvest.Config{}, harvest.Deps{
		Fetcher: &fakeFetcher{}, Ledger: memory.NewLedger(""), Searcher: &fakeSearcher{},
	})
	_, err := p.Run(context.Background(), harvest.Request{Query: "  "})
	require.Error(t, err)

	_, err = p.Run(context.Background(), harvest.Request{Smart: true})
	require.Error(t, err, "smart mode needs a query generator")
}

func TestRunSmartAggregatesToLimit(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		results: map[string][]harvest.SearchResult{
			"q1": {{URL: "https://a.example.com/1.pdf"}, {URL: "https://a.example.com/2.pdf"}},
			"q3": {{URL: "https://a.example.com/2.pdf"}, {URL: "https://a.example.com/3.pdf"}, {URL: "https://a.example.com/4.pdf"}},
		},
		errs: map[string]error{"q2": errors.New("quota")},
	}
	p := newPipeline(t, harvest.Config{}, harvest.Deps{
		Fetcher:  &fakeFetcher{},
		Ledger:   memory.NewLedger(""),
		Searcher: searcher,
		Queries:  fakeQueries{queries: []string{"q1", "q2", "q3", "q4"}},
	})

	sum, err := p.Run(context.Background(), harvest.Request{Smart: true, Topics: []string{"tax"}, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Candidates)
	assert.Equal(t, 3, sum.Failed)
	assert.Equal(t, []string{"q1", "q2", "q3"}, searcher.calls, "collection stops once the limit is reached")
	assert.Equal(t, []int{20, 20, 20}, searcher.maxes)
}

func TestCollectCandidatesDedupesAndSkipsEmpty(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: map[string][]harvest.SearchResult{
		"a": {{URL: ""}, {URL: "https://x/1.pdf", Title: "first"}, {URL: "https://x/1.pdf", Title: "second"}},
	}}
	p := newPipeline(t, harvest.Config{}, harvest.Deps{
		Fetcher: &fakeFetcher{}, Ledger: memory.NewLedger(""), Searcher: searcher,
	})

	got := p.CollectCandidates(context.Background(), []string{"a"}, 5, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Title)
}

func TestIngestDuplicateHashIsNotAnError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{byURL: map[string]*harvest.FetchResult{
		"https://a.example.com/1.pdf":    stored("same.pdf", "cc", 5),
		"https://b.example.com/copy.pdf": {Path: "/cas/same.pdf", SHA256: "cc", Size: 5, Skipped: true},
	}}
	pub := memorypublisher.New()
	p := newPipeline(t, harvest.Config{NotifyTopic: "documents"}, harvest.Deps{
		Fetcher: fetcher, Ledger: memory.NewLedger(harvest.DuplicateIgnore), Publisher: pub, IDs: fixedIDs{},
	})

	sum, err := p.Ingest(context.Background(), []harvest.SearchResult{
		{URL: "https://a.example.com/1.pdf"},
		{URL: "https://b.example.com/copy.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	assert.Equal(t, 1, sum.Duplicates)
	assert.Equal(t, 1, sum.AlreadyOnDisk)
	assert.Equal(t, 1, sum.Published)

	events := pub.Events("documents")
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "cc", event.SHA256)
	assert.Empty(t, event.ObjectURI)
}

func TestIngestUploadsAndCarriesObjectURI(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{byURL: map[string]*harvest.FetchResult{
		"https://a/1.pdf": stored("one.pdf", "d1", 1),
		"https://a/2.pdf": stored("two.pdf", "d2", 2),
	}}
	up := &fakeUploader{fail: map[string]bool{"two.pdf": true}}
	pub := memorypublisher.New()
	p := newPipeline(t, harvest.Config{Bucket: "forms", NotifyTopic: "t"}, harvest.Deps{
		Fetcher: fetcher, Ledger: memory.NewLedger(""), Uploader: up, Publisher: pub,
	})

	sum, err := p.Ingest(context.Background(), []harvest.SearchResult{{URL: "https://a/1.pdf"}, {URL: "https://a/2.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Uploaded)
	assert.Equal(t, 1, sum.UploadFailed)
	assert.Equal(t, 2, sum.Inserted, "upload failures do not block recording")
	assert.Equal(t, []string{"forms/one.pdf"}, up.uploaded)

	events := pub.Events("t")
	require.Len(t, events, 2)
	assert.Equal(t, "s3://forms/one.pdf", events[0].ObjectURI)
	assert.Empty(t, events[1].ObjectURI)
}

func TestIngestEnsureBucketFailureIsFatal(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, harvest.Config{Bucket: "forms"}, harvest.Deps{
		Fetcher: &fakeFetcher{}, Ledger: memory.NewLedger(""), Uploader: &fakeUploader{ensureErr: errors.New("denied")},
	})
	_, err := p.Ingest(context.Background(), []harvest.SearchResult{{URL: "https://a/1.pdf"}})
	require.ErrorContains(t, err, "ensure bucket")
}

func TestIngestPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{byURL: map[string]*harvest.FetchResult{"https://a/1.pdf": stored("one.pdf", "e1", 1)}}
	pub := memorypublisher.New()
	pub.FailWith(errors.New("pubsub down"))
	p := newPipeline(t, harvest.Config{NotifyTopic: "t"}, harvest.Deps{
		Fetcher: fetcher, Ledger: memory.NewLedger(""), Publisher: pub,
	})

	sum, err := p.Ingest(context.Background(), []harvest.SearchResult{{URL: "https://a/1.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	assert.Zero(t, sum.Published)
}

func TestIngestStorageFailureRecordsSuccessesThenFails(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		byURL: map[string]*harvest.FetchResult{"https://a/ok.pdf": stored("ok.pdf", "f1", 1)},
		err:   fmt.Errorf("https://a/bad.pdf: %w", harvest.ErrStorage),
	}
	ledger := memory.NewLedger("")
	p := newPipeline(t, harvest.Config{}, harvest.Deps{Fetcher: fetcher, Ledger: ledger})

	sum, err := p.Ingest(context.Background(), []harvest.SearchResult{{URL: "https://a/ok.pdf"}, {URL: "https://a/bad.pdf"}})
	require.ErrorIs(t, err, harvest.ErrStorage)
	assert.Equal(t, 1, sum.Inserted)
	n, err := ledger.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIngestShortFetchResultIsAnError(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, harvest.Config{}, harvest.Deps{Fetcher: &fakeFetcher{short: true}, Ledger: memory.NewLedger("")})
	_, err := p.Ingest(context.Background(), []harvest.SearchResult{{URL: "https://a/1.pdf"}})
	require.Error(t, err)
}

func TestIngestLedgerFailureAborts(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{byURL: map[string]*harvest.FetchResult{
		"https://a/1.pdf": stored("one.pdf", "g1", 1),
		"https://a/2.pdf": stored("two.pdf", "g2", 1),
	}}
	p := newPipeline(t, harvest.Config{}, harvest.Deps{
		Fetcher: fetcher, Ledger: failingLedger{memory.NewLedger("")},
	})

	sum, err := p.Ingest(context.Background(), []harvest.SearchResult{{URL: "https://a/1.pdf"}, {URL: "https://a/2.pdf"}})
	require.ErrorContains(t, err, "disk full")
	assert.Zero(t, sum.Inserted)
}

func TestIngestEmptyBatch(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, harvest.Config{}, harvest.Deps{Fetcher: &fakeFetcher{}, Ledger: memory.NewLedger("")})
	sum, err := p.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Candidates)
}
