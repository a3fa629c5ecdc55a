package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/dbx"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository implements file metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, content_hash, size, filename, content_type, comment,
	owner_id, owner_host, folder_id, storage_mode, backend_kind,
	object_key, web_key, thumbnail_key, url, web_url, thumbnail_url,
	access_key, width, height, avg_color, is_sensitive,
	source_url, source_uri, created_at, deleted_at`

// Insert persists a new record. Unique-constraint violations are reported
// as common.ErrDuplicateKey.
func (r *PostgresRepository) Insert(ctx context.Context, f *models.FileRecord) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`
	var folderID any
	if f.FolderID != "" {
		folderID = f.FolderID
	}
	var deletedAt any
	if f.DeletedAt != nil {
		deletedAt = *f.DeletedAt
	}

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.ContentHash, f.Size, f.Filename, f.ContentType, f.Comment,
		f.OwnerID, f.OwnerHost, folderID, string(f.StorageMode), f.BackendKind,
		f.ObjectKey, f.WebKey, f.ThumbnailKey, f.URL, f.WebURL, f.ThumbnailURL,
		f.AccessKey, f.Width, f.Height, f.AvgColor, f.IsSensitive,
		f.SourceURL, f.SourceURI, f.CreatedAt, deletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

// FindByID returns the record with the given id, including tombstoned ones.
// Returns common.ErrorNotFound when no row matches.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1`
	return r.findOne(ctx, query, id)
}

// FindDuplicate returns the owner's non-deleted record with the same
// content hash, or common.ErrorNotFound.
func (r *PostgresRepository) FindDuplicate(ctx context.Context, ownerID, contentHash string) (*models.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id=$1 AND content_hash=$2 AND deleted_at IS NULL
		LIMIT 1`
	return r.findOne(ctx, query, ownerID, contentHash)
}

// FindBySourceURI returns the owner's non-deleted record for the given
// canonical remote identity, or common.ErrorNotFound.
func (r *PostgresRepository) FindBySourceURI(ctx context.Context, ownerID, sourceURI string) (*models.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id=$1 AND source_uri=$2 AND deleted_at IS NULL
		LIMIT 1`
	return r.findOne(ctx, query, ownerID, sourceURI)
}

// AggregateUsage sums the sizes of the owner's non-deleted materialized
// records. Link-only records carry size 0 and do not affect the result.
func (r *PostgresRepository) AggregateUsage(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM files
		WHERE owner_id=$1 AND storage_mode=$2 AND deleted_at IS NULL`

	var usage int64
	err := r.db.QueryRowContext(ctx, query, ownerID, string(models.StorageModeMaterialized)).Scan(&usage)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	return usage, nil
}

// FindOldestExcluding returns the owner's oldest non-deleted record whose id
// is not among excludeIDs, or common.ErrorNotFound.
func (r *PostgresRepository) FindOldestExcluding(ctx context.Context, ownerID string, excludeIDs []string) (*models.FileRecord, error) {
	args := []any{ownerID}
	var conds []string
	for _, id := range excludeIDs {
		if id == "" {
			continue
		}
		args = append(args, id)
		conds = append(conds, fmt.Sprintf("id <> $%d", len(args)))
	}

	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id=$1 AND deleted_at IS NULL`
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC LIMIT 1"

	return r.findOne(ctx, query, args...)
}

// MarkDeleted sets the tombstone timestamp. Idempotent: a second call on the
// same id affects no rows and is not an error.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string) error {
	query := `UPDATE files SET deleted_at=$2 WHERE id=$1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark deleted: %w", err)
	}
	return nil
}

// UpdateProperties backfills derived image properties for a record.
func (r *PostgresRepository) UpdateProperties(ctx context.Context, id string, width, height int, avgColor string) error {
	query := `UPDATE files SET width=$2, height=$3, avg_color=$4 WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, id, width, height, avgColor); err != nil {
		return fmt.Errorf("failed to update properties: %w", err)
	}
	return nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.FileRecord, error) {
	f := &models.FileRecord{}
	var (
		folderID    sql.NullString
		deletedAt   sql.NullTime
		storageMode string
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&f.ID, &f.ContentHash, &f.Size, &f.Filename, &f.ContentType, &f.Comment,
		&f.OwnerID, &f.OwnerHost, &folderID, &storageMode, &f.BackendKind,
		&f.ObjectKey, &f.WebKey, &f.ThumbnailKey, &f.URL, &f.WebURL, &f.ThumbnailURL,
		&f.AccessKey, &f.Width, &f.Height, &f.AvgColor, &f.IsSensitive,
		&f.SourceURL, &f.SourceURI, &f.CreatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	f.StorageMode = models.StorageMode(storageMode)
	if folderID.Valid {
		f.FolderID = folderID.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	return f, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
