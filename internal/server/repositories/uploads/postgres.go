// Package uploads implements upload session persistence over PostgreSQL.
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) GetForUser(ctx context.Context, userID, id string) (*models.UploadSession, error) {
	query :=
		`SELECT id, user_id, status, temp_key, final_key, mime_type, file_size, original_filename,
		        expires_at, completed_at, etag, material_id, failure_reason, created_at, updated_at
		 FROM upload_sessions
		 WHERE id = $1 AND user_id = $2
		 `

	var (
		s                                         models.UploadSession
		status                                    string
		finalKey, etag, materialID, failureReason sql.NullString
		completedAt                               sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(
		&s.ID, &s.UserID, &status, &s.TempKey, &finalKey, &s.MimeType, &s.FileSize, &s.OriginalFilename,
		&s.ExpiresAt, &completedAt, &etag, &materialID, &failureReason, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.Status = models.UploadStatus(status)
	s.FinalKey = finalKey.String
	s.ETag = etag.String
	s.MaterialID = materialID.String
	s.FailureReason = failureReason.String
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return &s, nil
}

func (r *PostgresRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	query :=
		`UPDATE upload_sessions SET status = 'EXPIRED', updated_at = now()
		 WHERE id = $1 AND status = 'INITIATED'
		 `
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to expire upload: %w", err)
	}
	return dbx.Applied(res)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	query :=
		`UPDATE upload_sessions SET status = 'FAILED', failure_reason = $2, updated_at = now()
		 WHERE id = $1 AND status = 'INITIATED'
		 `
	res, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return false, fmt.Errorf("failed to fail upload: %w", err)
	}
	return dbx.Applied(res)
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id, materialID, finalKey, etag string, completedAt time.Time) error {
	query :=
		`UPDATE upload_sessions
		 SET status = 'COMPLETED', material_id = $2, final_key = $3, etag = NULLIF($4, ''),
		     completed_at = $5, updated_at = now()
		 WHERE id = $1 AND status = 'INITIATED'
		 `
	res, err := r.db.ExecContext(ctx, query, id, materialID, finalKey, etag, completedAt)
	if err != nil {
		return fmt.Errorf("failed to complete upload: %w", err)
	}
	return dbx.ExpectOne(res)
}

func (r *PostgresRepository) LinkMaterial(ctx context.Context, id, materialID string) error {
	query :=
		`UPDATE upload_sessions SET material_id = $2, updated_at = now()
		 WHERE id = $1 AND status = 'INITIATED' AND (material_id IS NULL OR material_id = $2)
		 `
	res, err := r.db.ExecContext(ctx, query, id, materialID)
	if err != nil {
		return fmt.Errorf("failed to link material: %w", err)
	}
	return dbx.ExpectOne(res)
}
