// Package storage selects a ledger backend from a connection string.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/formharvest/internal/harvest"
	"github.com/JakeFAU/formharvest/internal/storage/postgres"
	"github.com/JakeFAU/formharvest/internal/storage/sqlite"
)

// LedgerConfig describes which ledger to open.
type LedgerConfig struct {
	// ConnectionString is a postgres:// URL or a SQLite file path.
	ConnectionString string                  `mapstructure:"connection_string"`
	Table            string                  `mapstructure:"table"`
	OnDuplicate      harvest.DuplicatePolicy `mapstructure:"on_duplicate"`
	MaxConns         int32                   `mapstructure:"max_conns"`
	MaxConnLifetime  time.Duration           `mapstructure:"max_conn_lifetime"`
}

// IsPostgres reports whether the connection string targets a Postgres server.
func (c LedgerConfig) IsPostgres() bool {
	s := strings.ToLower(strings.TrimSpace(c.ConnectionString))
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

// OpenLedger opens the configured ledger and creates its table.
func OpenLedger(ctx context.Context, cfg LedgerConfig) (harvest.Ledger, error) {
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return nil, fmt.Errorf("ledger connection string is required")
	}
	var (
		ledger harvest.Ledger
		err    error
	)
	if cfg.IsPostgres() {
		ledger, err = postgres.NewLedger(ctx, postgres.LedgerConfig{
			DSN:             cfg.ConnectionString,
			Table:           cfg.Table,
			OnDuplicate:     cfg.OnDuplicate,
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
	} else {
		ledger, err = sqlite.Open(sqlite.Config{
			Path:        cfg.ConnectionString,
			Table:       cfg.Table,
			OnDuplicate: cfg.OnDuplicate,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := ledger.Init(ctx); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	return ledger, nil
}
