package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/formharvest/internal/harvest"
)

func testDoc() harvest.Document {
	return harvest.Document{
		Filename: "0123456789abcdef.pdf",
		URL:      "https://www.irs.gov/pub/irs-pdf/f1040.pdf",
		SHA256:   "0123456789abcdef" + strings.Repeat("0", 48),
		Title:    "Form 1040",
		Sector:   "government",
		Size:     2048,
	}
}

func TestLedgerInitCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "pdfs", harvest.DuplicateIgnore)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pdfs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, ledger.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerInsertNewRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "pdfs", harvest.DuplicateIgnore)
	require.NoError(t, err)

	doc := testDoc()
	mock.ExpectExec("INSERT INTO pdfs").
		WithArgs(doc.Filename, doc.URL, doc.SHA256, doc.Title, doc.Sector, doc.Size).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := ledger.Insert(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerInsertDuplicateIgnored(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "pdfs", harvest.DuplicateIgnore)
	require.NoError(t, err)

	doc := testDoc()
	doc.Sector = ""
	mock.ExpectExec("INSERT INTO pdfs").
		WithArgs(doc.Filename, doc.URL, doc.SHA256, doc.Title, harvest.SectorUnknown, doc.Size).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := ledger.Insert(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerInsertDuplicateMerged(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "pdfs", harvest.DuplicateMerge)
	require.NoError(t, err)

	doc := testDoc()
	mock.ExpectExec("INSERT INTO pdfs").
		WithArgs(doc.Filename, doc.URL, doc.SHA256, doc.Title, doc.Sector, doc.Size).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("UPDATE pdfs SET").
		WithArgs(doc.Title, doc.Sector, doc.SHA256).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	inserted, err := ledger.Insert(context.Background(), doc)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerInsertError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "pdfs", harvest.DuplicateIgnore)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO pdfs").WillReturnError(errors.New("connection reset"))

	_, err = ledger.Insert(context.Background(), testDoc())
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert document")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerFindByHash(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "", harvest.DuplicateIgnore)
	require.NoError(t, err)

	doc := testDoc()
	rows := pgxmock.NewRows([]string{"id", "filename", "url", "sha256", "title", "sector", "size"}).
		AddRow(int64(7), doc.Filename, doc.URL, doc.SHA256, doc.Title, doc.Sector, doc.Size)
	mock.ExpectQuery("SELECT id, filename, url, sha256, title, sector, size FROM pdfs").
		WithArgs(doc.SHA256).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT id, filename, url, sha256, title, sector, size FROM pdfs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := ledger.FindByHash(context.Background(), doc.SHA256)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.ID)
	require.Equal(t, doc.URL, got.URL)

	_, err = ledger.FindByHash(context.Background(), "missing")
	require.ErrorIs(t, err, harvest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerCount(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedgerWithPool(mock, "pdfs", harvest.DuplicateIgnore)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := ledger.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLedgerWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLedgerWithPool(nil, "pdfs", harvest.DuplicateIgnore)
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewLedgerWithPool(mock, "bad-name", harvest.DuplicateIgnore)
	require.Error(t, err)
	_, err = NewLedgerWithPool(mock, "pdfs", "replace")
	require.Error(t, err)
	_, err = NewLedger(context.Background(), LedgerConfig{})
	require.Error(t, err)
}
