package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/dbx"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/blobs"
)

// chunkSize is the payload size of one blob_chunks row.
const chunkSize = 256 * 1024

// VariantStore is the capability a backend may expose for keeping derived
// renditions as child records linked to the original, instead of under
// independent keys. The chunked backend implements it; object-storage
// backends do not.
type VariantStore interface {
	// StoreVariant persists a rendition linked to the original blob.
	StoreVariant(ctx context.Context, originalID, kind, filename, contentType string, data []byte) error

	// OpenVariant returns the rendition blob and its content stream, or
	// common.ErrorNotFound when the original has no such rendition.
	OpenVariant(ctx context.Context, originalID, kind string) (*models.BlobRecord, io.ReadCloser, error)
}

// ChunkedBackend stores blobs as chunk rows in the metadata database. It is
// the fallback for installations without object storage; originals and
// variants become independent child records tied together by original id.
type ChunkedBackend struct {
	db      *sql.DB
	repo    blobs.Repository
	baseURL string
}

// NewChunkedBackend constructs the backend over the given database.
// publicBaseURL is the externally visible base of the file-serving endpoint.
func NewChunkedBackend(db *sql.DB, repo blobs.Repository, publicBaseURL string) *ChunkedBackend {
	return &ChunkedBackend{
		db:      db,
		repo:    repo,
		baseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Put stores the content as an original blob whose id is the key. The blob
// header and all chunks commit in one transaction, so a failed upload
// leaves no partial object behind.
func (b *ChunkedBackend) Put(ctx context.Context, key string, content io.Reader, size int64, contentType, dispositionName string) error {
	return b.store(ctx, &models.BlobRecord{
		ID:          key,
		Kind:        models.BlobKindOriginal,
		Filename:    dispositionName,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}, content)
}

// StoreVariant persists a rendition under a fresh id, linked to originalID.
func (b *ChunkedBackend) StoreVariant(ctx context.Context, originalID, kind, filename, contentType string, data []byte) error {
	return b.store(ctx, &models.BlobRecord{
		ID:          NewKey("", ""),
		OriginalID:  originalID,
		Kind:        kind,
		Filename:    filename,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}, bytes.NewReader(data))
}

func (b *ChunkedBackend) store(ctx context.Context, blob *models.BlobRecord, content io.Reader) error {
	return dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := blobs.NewPostgresRepository(tx)

		if err := repo.Create(ctx, blob); err != nil {
			return err
		}

		var total int64
		buf := make([]byte, chunkSize)
		for seq := 0; ; seq++ {
			n, err := io.ReadFull(content, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if err := repo.AppendChunk(ctx, blob.ID, seq, chunk); err != nil {
					return err
				}
				total += int64(n)
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("read content: %w", err)
			}
		}

		return repo.UpdateSize(ctx, blob.ID, total)
	})
}

// Open streams the original blob stored under key.
func (b *ChunkedBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := b.repo.FindByID(ctx, key); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b.repo.OpenChunks(ctx, key)
}

// OpenVariant returns the rendition attached to originalID, if any.
func (b *ChunkedBackend) OpenVariant(ctx context.Context, originalID, kind string) (*models.BlobRecord, io.ReadCloser, error) {
	blob, err := b.repo.FindVariant(ctx, originalID, kind)
	if err != nil {
		return nil, nil, err
	}
	rc, err := b.repo.OpenChunks(ctx, blob.ID)
	if err != nil {
		return nil, nil, err
	}
	return blob, rc, nil
}

// Delete removes the blob under key together with any attached variants'
// chunks (variants are deleted by their own keys when known; the schema
// cascades chunk removal).
func (b *ChunkedBackend) Delete(ctx context.Context, key string) error {
	return b.repo.Delete(ctx, key)
}

// PublicURL points at our own file-serving endpoint.
func (b *ChunkedBackend) PublicURL(key string) string {
	return b.baseURL + "/files/" + key
}

// Kind identifies this backend.
func (b *ChunkedBackend) Kind() string { return KindChunked }
