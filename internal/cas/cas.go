// Package cas provides a content-addressed store for immutable objects.
// Objects are identified by the SHA-256 hash of their bytes; storing the
// same content twice yields the same hash and performs no duplicate write.
package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound is returned when no object exists for a hash.
	ErrNotFound = errors.New("object not found")
	// ErrEmptyContent is returned when storing zero-length content.
	ErrEmptyContent = errors.New("content cannot be empty")
)

// StorageError wraps an underlying I/O failure from a store backend.
// It is returned after the backend's bounded retry budget is exhausted.
type StorageError struct {
	Op   string // operation that failed: "put", "get", "has"
	Hash string // object hash, if known
	Err  error
}

func (e *StorageError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("storage %s failed for %s: %v", e.Op, shortHash(e.Hash), e.Err)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is the interface for content-addressed object persistence.
type Store interface {
	// Put stores content and returns its hash. Storing identical content
	// twice returns the same hash; the second write is a no-op.
	Put(ctx context.Context, content []byte) (string, error)

	// Get retrieves the content for a hash. Returns ErrNotFound if no
	// object exists.
	Get(ctx context.Context, hash string) ([]byte, error)

	// Has reports whether an object exists for the hash.
	Has(ctx context.Context, hash string) (bool, error)
}

// HashContent computes the content hash for a byte slice: SHA-256 in
// lowercase hex. This is the single identity function for the whole system.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// shortHash returns a display-friendly 16-character prefix for logs.
func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}
