// Package postgres provides the Postgres-backed document ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/formharvest/internal/harvest"
)

const defaultTable = "pdfs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerConfig controls the Postgres connection pool used for ledger rows.
type LedgerConfig struct {
	DSN             string
	Table           string
	OnDuplicate     harvest.DuplicatePolicy
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Ledger writes document rows into Postgres.
type Ledger struct {
	pool   pool
	table  string
	policy harvest.DuplicatePolicy
}

// NewLedger creates a Postgres-backed Ledger using the provided config.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.connection_string is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	ledger, err := NewLedgerWithPool(p, cfg.Table, cfg.OnDuplicate)
	if err != nil {
		p.Close()
		return nil, err
	}
	return ledger, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool (primarily for testing).
func NewLedgerWithPool(p pool, table string, policy harvest.DuplicatePolicy) (*Ledger, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
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
	return &Ledger{pool: p, table: table, policy: policy}, nil
}

// Init creates the table if it does not exist.
func (l *Ledger) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	filename TEXT NOT NULL,
	url TEXT NOT NULL,
	sha256 TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	sector TEXT NOT NULL DEFAULT 'unknown',
	size BIGINT NOT NULL DEFAULT 0
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", l.table, err)
	}
	return nil
}

// Insert writes doc unless its hash is already recorded.
func (l *Ledger) Insert(ctx context.Context, doc harvest.Document) (bool, error) {
	if l == nil || l.pool == nil {
		return false, fmt.Errorf("ledger is not configured")
	}
	if doc.SHA256 == "" {
		return false, fmt.Errorf("sha256 is required")
	}
	if doc.Sector == "" {
		doc.Sector = harvest.SectorUnknown
	}
	query := fmt.Sprintf(`
INSERT INTO %s (filename, url, sha256, title, sector, size)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sha256) DO NOTHING`, l.table)
	tag, err := l.pool.Exec(ctx, query, doc.Filename, doc.URL, doc.SHA256, doc.Title, doc.Sector, doc.Size)
	if err != nil {
		return false, fmt.Errorf("insert document: %w", err)
	}
	if tag.RowsAffected() > 0 {
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
	title = CASE WHEN title = '' THEN $1 ELSE title END,
	sector = CASE WHEN sector IN ('', 'unknown') THEN $2 ELSE sector END
WHERE sha256 = $3`, l.table)
	if _, err := l.pool.Exec(ctx, query, doc.Title, doc.Sector, doc.SHA256); err != nil {
		return fmt.Errorf("merge document: %w", err)
	}
	return nil
}

// FindByHash returns the row for sha256 or harvest.ErrNotFound.
func (l *Ledger) FindByHash(ctx context.Context, sha256 string) (harvest.Document, error) {
	query := fmt.Sprintf(`SELECT id, filename, url, sha256, title, sector, size FROM %s WHERE sha256 = $1`, l.table)
	var doc harvest.Document
	err := l.pool.QueryRow(ctx, query, sha256).
		Scan(&doc.ID, &doc.Filename, &doc.URL, &doc.SHA256, &doc.Title, &doc.Sector, &doc.Size)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if err := l.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, l.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() error {
	if l == nil || l.pool == nil {
		return nil
	}
	l.pool.Close()
	return nil
}
