package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
)

// Repository persists upload sessions. Every terminal transition is
// conditional on the session still being INITIATED.
type Repository interface {
	// GetForUser returns the session owned by userID, or common.ErrorNotFound.
	GetForUser(ctx context.Context, userID, id string) (*models.UploadSession, error)
	// MarkExpired reports whether the session moved INITIATED → EXPIRED.
	MarkExpired(ctx context.Context, id string) (bool, error)
	// MarkFailed reports whether the session moved INITIATED → FAILED.
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
	// MarkCompleted moves the session INITIATED → COMPLETED and records the
	// final key, etag and material. Returns common.ErrStateConflict if the
	// session already left INITIATED.
	MarkCompleted(ctx context.Context, id, materialID, finalKey, etag string, completedAt time.Time) error
	// LinkMaterial attaches materialID to an INITIATED session that has no
	// material yet, or already has the same one.
	LinkMaterial(ctx context.Context, id, materialID string) error
}
