// Package utils provides shared digest helpers.
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
)

// Hasher computes lowercase hex digests
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a SHA-256 hasher
func DefaultHasher() *Hasher {
	return NewHasher(SHA256)
}

// Algorithm returns the hasher's algorithm
func (h *Hasher) Algorithm() HashAlgorithm {
	return h.algorithm
}

// Hash computes the digest of data. Unknown algorithms fall back to SHA-256.
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString computes the digest of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashFields computes one digest over fields in sorted order, so the
// result does not depend on argument order
func (h *Hasher) HashFields(fields ...string) string {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)
	return h.HashString(strings.Join(sorted, "|"))
}

// Short returns the first 8 characters of a digest for display
func Short(digest string) string {
	if len(digest) < 8 {
		return digest
	}
	return digest[:8]
}
