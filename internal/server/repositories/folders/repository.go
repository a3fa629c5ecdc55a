package folders

import (
	"context"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// Repository gives the drive layer read access to folder records. Folder
// management itself belongs to another component.
type Repository interface {
	// FindByIDAndOwner returns the folder only when it exists and belongs
	// to the given owner; otherwise common.ErrorNotFound.
	FindByIDAndOwner(ctx context.Context, id, ownerID string) (*models.FolderRecord, error)
}
