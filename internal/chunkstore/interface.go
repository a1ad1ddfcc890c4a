package chunkstore

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for temporary chunk object storage
type BlobStore interface {
	// Store saves content at the given path, overwriting any existing object
	Store(ctx context.Context, path string, content io.Reader, contentType string) error

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// GetSize returns the size of content at the given path
	GetSize(ctx context.Context, path string) (int64, error)

	// ModTime returns the last modification time of the object at the given path
	ModTime(ctx context.Context, path string) (time.Time, error)

	// List returns paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)
}
