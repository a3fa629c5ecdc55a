// Package repomanager wires repository constructors together and exposes a
// schema migration hook, so that services depend on one factory instead of
// individual repositories.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/drivestore/internal/dbx"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/files"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/folders"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Folders(db dbx.DBTX) folders.Repository
	Blobs(db dbx.DBTX) blobs.Repository
}
