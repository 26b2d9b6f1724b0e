package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

var (
	// ErrNotFound is returned when no object exists under the requested key.
	ErrNotFound = errors.New("storage key not found")
	// ErrInvalidKey is returned for keys that are absolute or leave the storage root.
	ErrInvalidKey = errors.New("invalid storage key")
)

type Storage interface {
	Reader(ctx context.Context, key string) (io.ReadCloser, error)
	Writer(ctx context.Context, key string) (io.WriteCloser, error)
}

// CleanKey returns the canonical slash separated form of key, so that every
// spelling of a key maps to the same object.
func CleanKey(key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}
