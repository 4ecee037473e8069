// Package sqlite implements the document ledger on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/formharvest/internal/harvest"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS = 5000
	maxOpenConns  = 1
	defaultTable  = "pdfs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the ledger lives and how duplicates are handled.
type Config struct {
	Path        string
	Table       string
	OnDuplicate harvest.DuplicatePolicy
}

// Ledger records documents in SQLite. Uniqueness of sha256 is enforced by
// the schema, so concurrent writers from separate processes are safe.
type Ledger struct {
	db     *sql.DB
	table  string
	policy harvest.DuplicatePolicy
}

// Open opens (or creates) the database file. Call Init before use.
func Open(cfg Config) (*Ledger, error) {
	dsn, err := sqliteDSN(cfg.Path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	ledger, err := NewWithDB(db, cfg.Table, cfg.OnDuplicate)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// NewWithDB wraps an existing database handle.
func NewWithDB(db *sql.DB, table string, policy harvest.DuplicatePolicy) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown duplicate policy %q", policy)
	}
	return &Ledger{db: db, table: table, policy: policy}, nil
}

// Init creates the table if it does not exist.
func (l *Ledger) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	url TEXT NOT NULL,
	sha256 TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	sector TEXT NOT NULL DEFAULT 'unknown',
	size INTEGER NOT NULL DEFAULT 0
)`, l.table)
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", l.table, err)
	}
	return nil
}

// Insert writes doc unless its hash is already recorded.
func (l *Ledger) Insert(ctx context.Context, doc harvest.Document) (bool, error) {
	if doc.SHA256 == "" {
		return false, fmt.Errorf("sha256 is required")
	}
	if doc.Sector == "" {
		doc.Sector = harvest.SectorUnknown
	}
	query := fmt.Sprintf(`
INSERT INTO %s (filename, url, sha256, title, sector, size)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(sha256) DO NOTHING`, l.table)
	res, err := l.db.ExecContext(ctx, query, doc.Filename, doc.URL, doc.SHA256, doc.Title, doc.Sector, doc.Size)
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	if l.policy == harvest.DuplicateMerge {
		if err := l.merge(ctx, doc); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (l *Ledger) merge(ctx context.Context, doc harvest.Document) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	title = CASE WHEN title = '' THEN ? ELSE title END,
	sector = CASE WHEN sector IN ('', 'unknown') THEN ? ELSE sector END
WHERE sha256 = ?`, l.table)
	if _, err := l.db.ExecContext(ctx, query, doc.Title, doc.Sector, doc.SHA256); err != nil {
		return fmt.Errorf("merge document: %w", err)
	}
	return nil
}

// FindByHash returns the row for sha256 or harvest.ErrNotFound.
func (l *Ledger) FindByHash(ctx context.Context, sha256 string) (harvest.Document, error) {
	query := fmt.Sprintf(`SELECT id, filename, url, sha256, title, sector, size FROM %s WHERE sha256 = ?`, l.table)
	var doc harvest.Document
	err := l.db.QueryRowContext(ctx, query, sha256).
		Scan(&doc.ID, &doc.Filename, &doc.URL, &doc.SHA256, &doc.Title, &doc.Sector, &doc.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return harvest.Document{}, harvest.ErrNotFound
	}
	if err != nil {
		return harvest.Document{}, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

// Count returns the number of recorded documents.
func (l *Ledger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, l.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	// The path is percent-escaped so a literal '?' or '#' is not read as the
	// start of the URI query or fragment.
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + q.Encode(), nil
}
