package cas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/panini-fs/ipcore/internal/validate"
)

// Default retry schedule for transient filesystem failures.
const (
	DefaultRetries      = 3
	retryBackoffInitial = 25 * time.Millisecond
)

// FSStore is a filesystem-backed content-addressed store. Objects live in a
// sharded tree <root>/objects/ab/cd/<hash> keyed by the first two hash byte
// pairs. Writes are atomic: content is written to a temp file and renamed
// into place, so readers never observe partial objects.
type FSStore struct {
	root    string
	retries int
	logger  *slog.Logger
}

// FSOption configures an FSStore.
type FSOption func(*FSStore)

// WithRetries sets the bounded retry budget for transient I/O failures.
func WithRetries(n int) FSOption {
	return func(s *FSStore) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithLogger sets the logger used for retry and failure reporting.
func WithLogger(logger *slog.Logger) FSOption {
	return func(s *FSStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFSStore creates a filesystem store rooted at root. The objects
// directory is created if it does not exist.
func NewFSStore(root string, opts ...FSOption) (*FSStore, error) {
	s := &FSStore{
		root:    root,
		retries: DefaultRetries,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Join(root, "objects"), 0o755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	return s, nil
}

// objectPath returns the sharded path for a hash.
func (s *FSStore) objectPath(hash string) string {
	return filepath.Join(s.root, "objects", hash[:2], hash[2:4], hash)
}

// Put stores content and returns its hash. Duplicate content is detected
// before any write and returns the existing hash.
func (s *FSStore) Put(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}
	hash := HashContent(content)

	exists, err := s.Has(ctx, hash)
	if err != nil {
		return "", err
	}
	if exists {
		return hash, nil
	}

	path := s.objectPath(hash)
	err = s.withRetry(ctx, "put", hash, func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		return os.Rename(tmpName, path)
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Get retrieves the content for a hash.
func (s *FSStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if err := validate.ObjectHash(hash); err != nil {
		return nil, err
	}
	var content []byte
	err := s.withRetry(ctx, "get", hash, func() error {
		data, err := os.ReadFile(s.objectPath(hash))
		if err != nil {
			return err
		}
		content = data
		return nil
	})
	if err != nil {
		var se *StorageError
		if errors.As(err, &se) && errors.Is(se.Err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, shortHash(hash))
		}
		return nil, err
	}
	return content, nil
}

// Has reports whether an object exists for the hash.
func (s *FSStore) Has(ctx context.Context, hash string) (bool, error) {
	if err := validate.ObjectHash(hash); err != nil {
		return false, err
	}
	_, err := os.Stat(s.objectPath(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &StorageError{Op: "has", Hash: hash, Err: err}
}

// withRetry runs fn up to retries+1 times with exponential backoff.
// Missing-file errors are not retried; they are a definitive answer.
func (s *FSStore) withRetry(ctx context.Context, op, hash string, fn func() error) error {
	backoff := retryBackoffInitial
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &StorageError{Op: op, Hash: hash, Err: err}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, os.ErrNotExist) {
			break
		}
		if attempt < s.retries {
			s.logger.Warn("transient storage failure, retrying",
				"op", op, "object", shortHash(hash), "attempt", attempt+1, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return &StorageError{Op: op, Hash: hash, Err: ctx.Err()}
			}
			backoff *= 2
		}
	}
	return &StorageError{Op: op, Hash: hash, Err: lastErr}
}
