package materials

import (
	"context"

	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
)

// Repository persists materials and their outlines. Status updates never
// touch a row that is already READY or FAILED.
type Repository interface {
	// Create inserts m. A checksum already used by a live material of the same
	// user yields common.ErrorAlreadyExists.
	Create(ctx context.Context, m *models.Material) error
	// FindByChecksum returns the live material of userID with the checksum,
	// or common.ErrorNotFound.
	FindByChecksum(ctx context.Context, userID, checksum string) (*models.Material, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	UpdateProgress(ctx context.Context, id string, progress int, step string) (bool, error)
	// MarkReady fills in the processing results of a pre-created material and
	// moves it to READY. Returns common.ErrStateConflict when the row is
	// already terminal.
	MarkReady(ctx context.Context, m *models.Material) error
	MarkFailed(ctx context.Context, id, message string) (bool, error)
	HardDelete(ctx context.Context, id string) error
	// ReplaceOutline deletes the material's outline and inserts nodes in order.
	// Callers run it inside a transaction.
	ReplaceOutline(ctx context.Context, materialID string, nodes []*models.OutlineNode) error
}
