// Package materials implements material and outline persistence over PostgreSQL.
package materials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/dbx"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Material) error {
	query :=
		`INSERT INTO materials (id, user_id, title, original_filename, storage_key, mime_type, file_size,
		                        checksum, status, progress, step, summary, processed_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, $11, NULLIF($12, ''), $13)
		 `
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.UserID, m.Title, m.OriginalFilename, m.StorageKey, m.MimeType, m.FileSize,
		m.Checksum, string(m.Status), m.Progress, m.Step, m.Summary, m.ProcessedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByChecksum(ctx context.Context, userID, checksum string) (*models.Material, error) {
	query :=
		`SELECT id, user_id, title, status FROM materials
		 WHERE user_id = $1 AND checksum = $2 AND deleted_at IS NULL
		 LIMIT 1
		 `

	m := &models.Material{Checksum: checksum}
	var status string
	err := r.db.QueryRowContext(ctx, query, userID, checksum).Scan(&m.ID, &m.UserID, &m.Title, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.Status = models.MaterialStatus(status)
	return m, nil
}

func (r *PostgresRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	query :=
		`UPDATE materials SET status = 'PROCESSING', updated_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
		 `
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark processing: %w", err)
	}
	return dbx.Applied(res)
}

func (r *PostgresRepository) UpdateProgress(ctx context.Context, id string, progress int, step string) (bool, error) {
	query :=
		`UPDATE materials SET progress = $2, step = $3, updated_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'PROCESSING') AND progress <= $2
		 `
	res, err := r.db.ExecContext(ctx, query, id, progress, step)
	if err != nil {
		return false, fmt.Errorf("failed to update progress: %w", err)
	}
	return dbx.Applied(res)
}

func (r *PostgresRepository) MarkReady(ctx context.Context, m *models.Material) error {
	query :=
		`UPDATE materials
		 SET title = $2, storage_key = $3, checksum = $4, summary = NULLIF($5, ''),
		     status = 'READY', progress = 100, step = $6, error_message = NULL,
		     processed_at = $7, updated_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
		 `
	res, err := r.db.ExecContext(ctx, query, m.ID, m.Title, m.StorageKey, m.Checksum, m.Summary, m.Step, m.ProcessedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("failed to mark ready: %w", err)
	}
	return dbx.ExpectOne(res)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	query :=
		`UPDATE materials SET status = 'FAILED', error_message = $2, progress = 100, step = 'FAILED', updated_at = now()
		 WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
		 `
	res, err := r.db.ExecContext(ctx, query, id, message)
	if err != nil {
		return false, fmt.Errorf("failed to mark failed: %w", err)
	}
	return dbx.Applied(res)
}

func (r *PostgresRepository) HardDelete(ctx context.Context, id string) error {
	query := `DELETE FROM materials WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReplaceOutline(ctx context.Context, materialID string, nodes []*models.OutlineNode) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM material_outline_nodes WHERE material_id = $1`, materialID); err != nil {
		return fmt.Errorf("failed to clear outline: %w", err)
	}

	query :=
		`INSERT INTO material_outline_nodes (id, material_id, parent_id, position, depth, title, summary)
		 VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
		 `
	for _, n := range nodes {
		if _, err := r.db.ExecContext(ctx, query,
			n.ID, materialID, n.ParentID, n.Position, n.Depth, n.Title, n.Summary); err != nil {
			return fmt.Errorf("failed to insert outline node: %w", err)
		}
	}
	return nil
}
