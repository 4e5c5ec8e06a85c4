// Package local provides a local filesystem storage backend rooted at the
// archive directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/debsources/debsources/internal/archerr"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string `json:"root_path"`
}

// LocalBackend implements storage.Backend on the local filesystem. Keys are
// opened through an os.Root, so no key can reach outside RootPath.
type LocalBackend struct {
	rootPath string
	root     *os.Root
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	root, err := os.OpenRoot(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("open root path %s: %w", cfg.RootPath, err)
	}

	return &LocalBackend{
		rootPath: cfg.RootPath,
		root:     root,
	}, nil
}

// GetObject reads a file with range support.
func (b *LocalBackend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	f, err := b.root.Open(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("open %s: %w", key, archerr.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: not a regular file: %w", key, archerr.ErrNotFound)
	}

	totalSize := info.Size()
	if offset > totalSize {
		offset = totalSize
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	returnSize := totalSize - offset
	if length > 0 && length < returnSize {
		returnSize = length
	}
	if returnSize < totalSize-offset {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, returnSize),
			Closer: f,
		}, returnSize, nil
	}
	return f, returnSize, nil
}

// ObjectExists checks if a regular file exists at key.
func (b *LocalBackend) ObjectExists(_ context.Context, key string) (bool, error) {
	info, err := b.root.Lstat(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close releases the root handle.
func (b *LocalBackend) Close() error { return b.root.Close() }

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
