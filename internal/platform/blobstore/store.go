package blobstore

import (
	"context"
	"errors"
	"io"
	"time"

	errs "github.com/veralex/clausebridge-backend/internal/pkg/errors"
)

// BlobInfo is the metadata returned by Head.
type BlobInfo struct {
	Size    int64
	ModTime time.Time
}

// Store is durable, content-addressed blob storage. Blobs are write-once by
// convention (keys are hash-derived), never mutated in place.
//
// Open and Head return errs.ErrNotFound for missing keys; any other error is
// a real I/O failure and propagates with the offending path. Delete is
// idempotent: deleting a missing key is not an error.
type Store interface {
	Put(ctx context.Context, key string, src io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Head(ctx context.Context, key string) (BlobInfo, error)
	Delete(ctx context.Context, key string) error
}

// IsNotFound reports whether err is the store's missing-key outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
