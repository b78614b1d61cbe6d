package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// List returns every object below prefix, recursively, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Opener hands out the store that serves a parsed location.
type Opener interface {
	Open(ctx context.Context, loc Location) (ObjectStore, error)
}
