package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/dbx"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// PostgresRepository implements folder lookups over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByIDAndOwner returns the folder when it exists and belongs to ownerID.
func (r *PostgresRepository) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*models.FolderRecord, error) {
	query := `SELECT id, owner_id, name FROM folders WHERE id=$1 AND owner_id=$2`

	f := &models.FolderRecord{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(&f.ID, &f.OwnerID, &f.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select folder: %w", err)
	}
	return f, nil
}
