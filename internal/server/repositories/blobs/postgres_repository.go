package blobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/dbx"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// PostgresRepository implements blob storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the blob header row.
func (r *PostgresRepository) Create(ctx context.Context, b *models.BlobRecord) error {
	query := `
		INSERT INTO blobs (id, original_id, kind, filename, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var originalID any
	if b.OriginalID != "" {
		originalID = b.OriginalID
	}
	_, err := r.db.ExecContext(ctx, query,
		b.ID, originalID, b.Kind, b.Filename, b.ContentType, b.Size, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert blob: %w", err)
	}
	return nil
}

// AppendChunk stores one content chunk at the given sequence number.
func (r *PostgresRepository) AppendChunk(ctx context.Context, blobID string, seq int, data []byte) error {
	query := `INSERT INTO blob_chunks (blob_id, seq, data) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, blobID, seq, data); err != nil {
		return fmt.Errorf("failed to insert chunk %d: %w", seq, err)
	}
	return nil
}

// UpdateSize records the final byte count once all chunks are written.
func (r *PostgresRepository) UpdateSize(ctx context.Context, blobID string, size int64) error {
	query := `UPDATE blobs SET size=$2 WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, blobID, size); err != nil {
		return fmt.Errorf("failed to update blob size: %w", err)
	}
	return nil
}

// FindByID returns the blob header, or common.ErrorNotFound.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.BlobRecord, error) {
	query := `SELECT id, original_id, kind, filename, content_type, size, created_at
		FROM blobs WHERE id=$1`
	return r.findOne(ctx, query, id)
}

// FindVariant returns the variant blob of the given kind attached to an
// original, or common.ErrorNotFound.
func (r *PostgresRepository) FindVariant(ctx context.Context, originalID, kind string) (*models.BlobRecord, error) {
	query := `SELECT id, original_id, kind, filename, content_type, size, created_at
		FROM blobs WHERE original_id=$1 AND kind=$2 LIMIT 1`
	return r.findOne(ctx, query, originalID, kind)
}

// OpenChunks returns a reader over the blob's chunks in sequence order.
func (r *PostgresRepository) OpenChunks(ctx context.Context, blobID string) (io.ReadCloser, error) {
	query := `SELECT data FROM blob_chunks WHERE blob_id=$1 ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, query, blobID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	return &chunkReader{rows: rows}, nil
}

// Delete removes the blob header; chunks go with it via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blobs WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.BlobRecord, error) {
	b := &models.BlobRecord{}
	var originalID sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&b.ID, &originalID, &b.Kind, &b.Filename, &b.ContentType, &b.Size, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select blob: %w", err)
	}
	if originalID.Valid {
		b.OriginalID = originalID.String
	}
	return b, nil
}

// chunkReader adapts an ordered chunk result set to io.ReadCloser.
type chunkReader struct {
	rows *sql.Rows
	buf  []byte
	err  error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	for len(c.buf) == 0 {
		if !c.rows.Next() {
			if err := c.rows.Err(); err != nil {
				c.err = err
			} else {
				c.err = io.EOF
			}
			return 0, c.err
		}
		var data []byte
		if err := c.rows.Scan(&data); err != nil {
			c.err = err
			return 0, err
		}
		c.buf = data
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *chunkReader) Close() error {
	return c.rows.Close()
}
