// Package memory holds in-memory stand-ins for the document store and
// ledger, used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/formharvest/internal/harvest"
	hashsha256 "github.com/JakeFAU/formharvest/internal/hash/sha256"
)

// ContentStore keeps documents in a map keyed by canonical name.
type ContentStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	hasher harvest.Hasher
}

// NewContentStore creates an empty in-memory content store.
func NewContentStore() *ContentStore {
	return &ContentStore{
		data:   make(map[string][]byte),
		hasher: hashsha256.New(),
	}
}

// Put stores a copy of data under memory://<digest[:16]>.pdf.
func (s *ContentStore) Put(ctx context.Context, data []byte) (harvest.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return harvest.StoredObject{}, err
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return harvest.StoredObject{}, fmt.Errorf("%w: %v", harvest.ErrStorage, err)
	}
	name, err := hashsha256.CanonicalName(digest, ".pdf")
	if err != nil {
		return harvest.StoredObject{}, fmt.Errorf("%w: %v", harvest.ErrStorage, err)
	}
	path := "memory://" + name

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data[name]; ok {
		return harvest.StoredObject{Path: path, SHA256: digest, Size: int64(len(existing)), Skipped: true}, nil
	}
	s.data[name] = append([]byte(nil), data...)
	return harvest.StoredObject{Path: path, SHA256: digest, Size: int64(len(data))}, nil
}

// Get returns the stored bytes for a canonical name.
func (s *ContentStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	return data, ok
}

// Len reports how many distinct documents are stored.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
