package blobs

import (
	"context"
	"io"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// Repository stores blob records and their content chunks for the chunked
// storage backend.
type Repository interface {
	Create(ctx context.Context, blob *models.BlobRecord) error
	AppendChunk(ctx context.Context, blobID string, seq int, data []byte) error
	UpdateSize(ctx context.Context, blobID string, size int64) error

	FindByID(ctx context.Context, id string) (*models.BlobRecord, error)

	// FindVariant returns the web or thumbnail blob attached to an
	// original, or common.ErrorNotFound.
	FindVariant(ctx context.Context, originalID, kind string) (*models.BlobRecord, error)

	// OpenChunks streams the blob's content in chunk order. The caller
	// must close the returned reader.
	OpenChunks(ctx context.Context, blobID string) (io.ReadCloser, error)

	// Delete removes the blob and, through the schema's cascade, its
	// chunks.
	Delete(ctx context.Context, id string) error
}
