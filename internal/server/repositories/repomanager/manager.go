package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/materialkeeper/internal/dbx"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/materials"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/uploads"
)

// RepositoryManager vends repositories bound to either the pool or an open
// transaction, so one unit of work can span several repositories.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Uploads(db dbx.DBTX) uploads.Repository
	Materials(db dbx.DBTX) materials.Repository
}
