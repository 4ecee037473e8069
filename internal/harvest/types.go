package harvest

import (
	"errors"
	"path/filepath"
)

// SectorUnknown is recorded when no sector rule matches a URL.
const SectorUnknown = "unknown"

var (
	// ErrStorage marks failures writing to the content-addressable store.
	ErrStorage = errors.New("content store write failed")
	// ErrNotFound is returned when a ledger lookup has no matching row.
	ErrNotFound = errors.New("document not found")
)

// StoredObject describes the outcome of a content-addressed write.
type StoredObject struct {
	Path    string
	SHA256  string
	Size    int64
	Skipped bool
}

// FetchResult is the outcome of one successful download.
type FetchResult struct {
	Path    string
	SHA256  string
	Size    int64
	URL     string
	Skipped bool
}

// Filename returns the base name of the stored file.
func (r FetchResult) Filename() string {
	return filepath.Base(r.Path)
}

// SearchResult is one candidate returned by a search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Document is a ledger row.
type Document struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	SHA256   string `json:"sha256"`
	Title    string `json:"title"`
	Sector   string `json:"sector"`
	Size     int64  `json:"size"`
}

// DocumentEvent is published after a new document is recorded.
type DocumentEvent struct {
	RunID     string `json:"run_id"`
	SHA256    string `json:"sha256"`
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	Sector    string `json:"sector"`
	Size      int64  `json:"size"`
	ObjectURI string `json:"object_uri,omitempty"`
}

// Summary counts what happened during one ingest run.
type Summary struct {
	RunID         string
	Candidates    int
	Fetched       int
	Failed        int
	AlreadyOnDisk int
	Inserted      int
	Duplicates    int
	Uploaded      int
	UploadFailed  int
	Published     int
}

// DuplicatePolicy decides what a ledger does when a hash is already recorded.
type DuplicatePolicy string

const (
	// DuplicateIgnore keeps the first row untouched.
	DuplicateIgnore DuplicatePolicy = "ignore"
	// DuplicateMerge fills an empty title and an empty or unknown sector on
	// the existing row from the later insert.
	DuplicateMerge DuplicatePolicy = "merge"
)

// Valid reports whether p is a known policy. The empty policy means ignore.
func (p DuplicatePolicy) Valid() bool {
	return p == "" || p == DuplicateIgnore || p == DuplicateMerge
}
