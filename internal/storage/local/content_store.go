// Package local implements the content-addressable document store on the
// local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/formharvest/internal/harvest"
	hashsha256 "github.com/JakeFAU/formharvest/internal/hash/sha256"
)

const (
	tmpDirName = ".tmp"
	defaultExt = ".pdf"
)

// StoreConfig captures the parameters for the local content store.
type StoreConfig struct {
	// RootDir is the directory that holds the canonical files.
	RootDir string `mapstructure:"root_dir" yaml:"root_dir"`
	// Extension is appended to the digest prefix; defaults to ".pdf".
	Extension string `mapstructure:"extension" yaml:"extension"`
}

// ContentStore writes documents under <root>/<digest[:16]><ext>.
type ContentStore struct {
	root   string
	ext    string
	hasher harvest.Hasher
}

// New creates a content store rooted at cfg.RootDir. The directory is created
// if missing and must be writable.
func New(cfg StoreConfig, hasher harvest.Hasher) (*ContentStore, error) {
	if strings.TrimSpace(cfg.RootDir) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if hasher == nil {
		hasher = hashsha256.New()
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root directory: %w", err)
	}

	info, err := os.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create root directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("root directory path is not a directory")
	}

	testFile := filepath.Join(root, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("root directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ext := cfg.Extension
	if ext == "" {
		ext = defaultExt
	}
	return &ContentStore{root: root, ext: ext, hasher: hasher}, nil
}

// Root returns the absolute store directory.
func (s *ContentStore) Root() string {
	return s.root
}

// Path returns the canonical path for a hex digest.
func (s *ContentStore) Path(digest string) (string, error) {
	name, err := hashsha256.CanonicalName(digest, s.ext)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, name), nil
}

// Put stores data under its canonical name. If the canonical file already
// exists nothing is written and the result is marked Skipped with the size of
// the existing file. New content is written to a temp file and renamed into
// place so the canonical name never refers to a partial file.
func (s *ContentStore) Put(ctx context.Context, data []byte) (harvest.StoredObject, error) {
	var zero harvest.StoredObject
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	digest, err := s.hasher.Hash(data)
	if err != nil {
		return zero, fmt.Errorf("%w: hash content: %v", harvest.ErrStorage, err)
	}
	dst, err := s.Path(digest)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", harvest.ErrStorage, err)
	}

	if info, statErr := os.Stat(dst); statErr == nil {
		return harvest.StoredObject{Path: dst, SHA256: digest, Size: info.Size(), Skipped: true}, nil
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return zero, fmt.Errorf("%w: stat %s: %v", harvest.ErrStorage, dst, statErr)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "put-*")
	if err != nil {
		return zero, fmt.Errorf("%w: create temp file: %v", harvest.ErrStorage, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return zero, fmt.Errorf("%w: write temp file: %v", harvest.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return zero, fmt.Errorf("%w: sync temp file: %v", harvest.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, fmt.Errorf("%w: close temp file: %v", harvest.ErrStorage, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		// A concurrent writer of identical content may have won the rename.
		if info, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(tmpPath)
			return harvest.StoredObject{Path: dst, SHA256: digest, Size: info.Size(), Skipped: true}, nil
		}
		_ = os.Remove(tmpPath)
		return zero, fmt.Errorf("%w: rename into place: %v", harvest.ErrStorage, err)
	}
	return harvest.StoredObject{Path: dst, SHA256: digest, Size: int64(len(data))}, nil
}
