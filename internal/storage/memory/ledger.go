package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/formharvest/internal/harvest"
)

// Ledger is an in-memory harvest.Ledger keyed by SHA-256.
type Ledger struct {
	mu     sync.RWMutex
	policy harvest.DuplicatePolicy
	nextID int64
	rows   map[string]harvest.Document
}

// NewLedger creates an empty ledger with the given duplicate policy.
func NewLedger(policy harvest.DuplicatePolicy) *Ledger {
	return &Ledger{policy: policy, rows: make(map[string]harvest.Document)}
}

// Init is a no-op.
func (l *Ledger) Init(context.Context) error {
	return nil
}

// Insert records doc unless its hash is already present.
func (l *Ledger) Insert(_ context.Context, doc harvest.Document) (bool, error) {
	if doc.Sector == "" {
		doc.Sector = harvest.SectorUnknown
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.rows[doc.SHA256]; ok {
		if l.policy == harvest.DuplicateMerge {
			if existing.Title == "" {
				existing.Title = doc.Title
			}
			if existing.Sector == "" || existing.Sector == harvest.SectorUnknown {
				existing.Sector = doc.Sector
			}
			l.rows[doc.SHA256] = existing
		}
		return false, nil
	}
	l.nextID++
	doc.ID = l.nextID
	l.rows[doc.SHA256] = doc
	return true, nil
}

// FindByHash returns the row for sha256 or harvest.ErrNotFound.
func (l *Ledger) FindByHash(_ context.Context, sha256 string) (harvest.Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.rows[sha256]
	if !ok {
		return harvest.Document{}, harvest.ErrNotFound
	}
	return doc, nil
}

// Count returns the number of rows.
func (l *Ledger) Count(context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.rows)), nil
}

// Close is a no-op.
func (l *Ledger) Close() error {
	return nil
}
