// Package sha256 provides the SHA-256 digest and naming helpers used for
// content addressing.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PrefixLen is the number of hex characters of a digest used in filenames.
const PrefixLen = 16

// Hasher implements harvest.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalName returns the content-addressed filename for a hex digest.
func CanonicalName(digest, ext string) (string, error) {
	if len(digest) < PrefixLen {
		return "", fmt.Errorf("digest %q shorter than %d characters", digest, PrefixLen)
	}
	return digest[:PrefixLen] + ext, nil
}

// Valid reports whether s is a full lowercase or uppercase hex SHA-256 digest.
func Valid(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
