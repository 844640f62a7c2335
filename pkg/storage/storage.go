// Package storage holds generated glue artifacts for the build cache. A
// Store maps slash-separated relative paths to small immutable blobs; Local
// keeps them on disk and S3Store in a bucket shared between machines.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// ErrInvalidPath is returned for paths that are absolute, contain "." or
// ".." elements, or are otherwise not valid fs paths.
var ErrInvalidPath = errors.New("storage: invalid path")

// Store is a blob store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns an error wrapping fs.ErrNotExist when path is absent.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put replaces the blob at path. Readers never observe a partial blob.
	Put(ctx context.Context, path string, data []byte) error

	// Delete is a no-op for absent paths.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)
}

func checkPath(path string) error {
	if !fs.ValidPath(path) || path == "." {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}
