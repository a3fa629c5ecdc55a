package files

import (
	"context"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// Repository is the metadata-store contract for drive file records.
//
// Insert must surface unique-constraint violations as common.ErrDuplicateKey
// so that callers can run the optimistic insert-then-refetch recovery for
// concurrent remote-link ingestion.
type Repository interface {
	Insert(ctx context.Context, file *models.FileRecord) error
	FindByID(ctx context.Context, id string) (*models.FileRecord, error)

	// FindDuplicate looks up a non-deleted record by (ownerID, contentHash).
	FindDuplicate(ctx context.Context, ownerID, contentHash string) (*models.FileRecord, error)

	// FindBySourceURI looks up a non-deleted record by (ownerID, sourceURI).
	FindBySourceURI(ctx context.Context, ownerID, sourceURI string) (*models.FileRecord, error)

	// AggregateUsage sums the sizes of the owner's non-deleted materialized
	// records.
	AggregateUsage(ctx context.Context, ownerID string) (int64, error)

	// FindOldestExcluding returns the owner's oldest non-deleted record
	// whose id is not among excludeIDs. Used by quota eviction.
	FindOldestExcluding(ctx context.Context, ownerID string, excludeIDs []string) (*models.FileRecord, error)

	// MarkDeleted sets the tombstone on a record.
	MarkDeleted(ctx context.Context, id string) error

	// UpdateProperties backfills derived image properties.
	UpdateProperties(ctx context.Context, id string, width, height int, avgColor string) error
}
