// Package storage defines the read-only Backend interface raw archive content
// is served from.
package storage

import (
	"context"
	"io"
)

// Backend is the interface for raw content backends. Keys are slash-separated
// "package/version/sub/path" strings of already-resolved file locations.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned. The returned
	// size is the number of bytes the reader yields.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
