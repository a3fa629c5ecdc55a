// Package storage defines the blob-storage backend contract and its three
// implementations: S3-compatible object storage, OpenStack Swift, and a
// database-chunked store for installations without object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
)

// Backend kinds selectable through configuration.
const (
	KindChunked = "chunked"
	KindS3      = "s3"
	KindSwift   = "swift"
)

// Backend stores and retrieves named blobs. Implementations must tolerate
// concurrent Put calls under distinct keys; Put overwrites by key.
type Backend interface {
	// Put stores content under key. size may be -1 when unknown.
	// dispositionName, when non-empty, is recorded as the inline download
	// filename where the backend supports it.
	Put(ctx context.Context, key string, content io.Reader, size int64, contentType, dispositionName string) error

	// Open returns the content stored under key. The caller must close
	// the returned reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// PublicURL returns the externally reachable URL for key.
	PublicURL(key string) string

	// Kind identifies the backend implementation.
	Kind() string
}

// NewKey generates an object key of the form {prefix}/{uuid}{ext}.
func NewKey(prefix, ext string) string {
	name := uuid.New().String() + ext
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// PutBytes stores an in-memory rendition through the backend.
func PutBytes(ctx context.Context, b Backend, key string, data []byte, contentType, dispositionName string) error {
	return b.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType, dispositionName)
}

// cacheControlImmutable marks stored objects as never changing: object
// identity is fixed at creation time.
const cacheControlImmutable = "max-age=31536000, immutable"

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = fmt.Errorf("object not found")
