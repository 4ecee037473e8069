package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/storage/memory"
)

const knownHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func newLedgerWithDoc(t *testing.T) *memory.Ledger {
	t.Helper()
	ledger := memory.NewLedger(harvest.DuplicateIgnore)
	_, err := ledger.Insert(context.Background(), harvest.Document{
		Filename: knownHash + ".pdf",
		URL:      "https://www.irs.gov/pub/irs-pdf/fw9.pdf",
		SHA256:   knownHash,
		Title:    "Form W-9",
		Sector:   "tax",
		Size:     1024,
	})
	require.NoError(t, err)
	return ledger
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewLedger(harvest.DuplicateIgnore), zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_GetDocument(t *testing.T) {
	t.Parallel()

	server := NewServer(newLedgerWithDoc(t), zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/v1/documents/"+knownHash)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var doc harvest.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, knownHash, doc.SHA256)
	assert.Equal(t, "Form W-9", doc.Title)
	assert.Equal(t, "tax", doc.Sector)
}

func TestServer_GetDocumentUppercaseHash(t *testing.T) {
	t.Parallel()

	server := NewServer(newLedgerWithDoc(t), zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/v1/documents/"+strings.ToUpper(knownHash))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GetDocumentNotFound(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewLedger(harvest.DuplicateIgnore), zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/v1/documents/"+knownHash)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "document not found")
}

func TestServer_GetDocumentBadHash(t *testing.T) {
	t.Parallel()

	server := NewServer(newLedgerWithDoc(t), zap.NewNop())
	for _, path := range []string{
		"/v1/documents/abc",
		"/v1/documents/" + strings.Repeat("z", 64),
		"/v1/documents/" + knownHash + "00",
	} {
		rec := serve(t, server.Handler(), http.MethodGet, path)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestServer_Stats(t *testing.T) {
	t.Parallel()

	server := NewServer(newLedgerWithDoc(t), zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/v1/stats")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"documents":1}`, rec.Body.String())
}

func TestServer_LedgerErrors(t *testing.T) {
	t.Parallel()

	server := NewServer(&failingLedger{err: errors.New("db down")}, zap.NewNop())

	rec := serve(t, server.Handler(), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, server.Handler(), http.MethodGet, "/v1/stats")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, server.Handler(), http.MethodGet, "/v1/documents/"+knownHash)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewLedger(harvest.DuplicateIgnore), zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/readyz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.NewLedger(harvest.DuplicateIgnore), zap.NewNop())
	_ = serve(t, server.Handler(), http.MethodGet, "/healthz")
	rec := serve(t, server.Handler(), http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := NewServer(&panicLedger{}, zap.NewNop())
	rec := serve(t, server.Handler(), http.MethodGet, "/v1/stats")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

type failingLedger struct {
	err error
}

func (f *failingLedger) Init(context.Context) error { return f.err }
func (f *failingLedger) Insert(context.Context, harvest.Document) (bool, error) {
	return false, f.err
}
func (f *failingLedger) FindByHash(context.Context, string) (harvest.Document, error) {
	return harvest.Document{}, f.err
}
func (f *failingLedger) Count(context.Context) (int64, error) { return 0, f.err }
func (f *failingLedger) Close() error                         { return nil }

type panicLedger struct {
	failingLedger
}

func (p *panicLedger) Count(context.Context) (int64, error) { panic("boom") }
