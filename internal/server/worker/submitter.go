// Package worker runs material processing in the background. Submitter
// prepares an upload for processing and enqueues it; Worker drains the queue
// through a goroutine pool.
package worker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/dbx"
	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
	"github.com/dmitrijs2005/materialkeeper/internal/server/pipeline"
	"github.com/dmitrijs2005/materialkeeper/internal/server/queue"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/repomanager"
)

// JobQueue is implemented by queue.Queue.
type JobQueue interface {
	Add(ctx context.Context, job models.ProcessingJob, opts queue.JobOptions) (string, bool, error)
}

// FileTypeChecker is implemented by parser.Registry.
type FileTypeChecker interface {
	IsSupportedMaterialFile(mimeType, filename string) bool
}

// SubmitRequest mirrors pipeline.FinalizeRequest for queued processing.
type SubmitRequest struct {
	UserID   string
	UploadID string
	Title    string
	ETag     string
}

// Submission tells the caller what to poll.
type Submission struct {
	JobID      string
	MaterialID string
	// Enqueued is false when the job was already queued earlier.
	Enqueued bool
}

// Submitter validates uploads and hands them to the worker through the
// job queue.
type Submitter struct {
	db    *sql.DB
	repos repomanager.RepositoryManager
	queue JobQueue
	types FileTypeChecker
	log   logging.Logger
	newID func() string
}

// NewSubmitter builds a Submitter. types decides which uploads can be
// processed at all.
func NewSubmitter(db *sql.DB, repos repomanager.RepositoryManager, q JobQueue, types FileTypeChecker, log logging.Logger) *Submitter {
	return &Submitter{
		db:    db,
		repos: repos,
		queue: q,
		types: types,
		log:   log.With("module", "submitter"),
		newID: uuid.NewString,
	}
}

// Submit pre-creates a PENDING material for the upload, links it to the
// session and enqueues a job keyed by the upload id. Submitting the same
// upload again reuses the linked material and does not enqueue twice.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	sess, err := s.repos.Uploads(s.db).GetForUser(ctx, req.UserID, req.UploadID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.NewError(common.CodeUploadNotFound, "upload session not found").
			WithDetail("uploadId", req.UploadID)
	}
	if err != nil {
		return nil, common.WrapError(common.CodeInternal, "failed to load upload session", err)
	}

	switch {
	case sess.Status == models.UploadCompleted:
		return nil, common.NewError(common.CodeUploadAlreadyCompleted, "upload session already completed").
			WithDetail("materialId", sess.MaterialID)
	case sess.Status == models.UploadExpired:
		return nil, common.NewError(common.CodeUploadExpired, "upload session expired")
	case sess.Status != models.UploadInitiated:
		return nil, common.NewError(common.CodeUploadInvalidState, "upload session is not open")
	}
	if !s.types.IsSupportedMaterialFile(sess.MimeType, sess.OriginalFilename) {
		return nil, common.NewError(common.CodeMaterialUnsupportedType, "unsupported material type").
			WithDetail("mimeType", sess.MimeType).
			WithDetail("filename", sess.OriginalFilename)
	}

	materialID := sess.MaterialID
	if materialID == "" {
		materialID = s.newID()
		if err := s.createPending(ctx, sess, materialID, req.Title); err != nil {
			return nil, err
		}
	}

	jobID, added, err := s.queue.Add(ctx, models.ProcessingJob{
		UserID:   req.UserID,
		UploadID: req.UploadID,
		Title:    req.Title,
		ETag:     req.ETag,
	}, queue.JobOptions{JobID: req.UploadID})
	if err != nil {
		// the material stays PENDING and linked; a resubmit enqueues it
		return nil, common.WrapError(common.CodeInternal, "failed to enqueue job", err)
	}

	s.log.Info(ctx, "material submitted",
		"upload_id", req.UploadID, "material_id", materialID, "job_id", jobID, "enqueued", added)
	return &Submission{JobID: jobID, MaterialID: materialID, Enqueued: added}, nil
}

func (s *Submitter) createPending(ctx context.Context, sess *models.UploadSession, materialID, title string) error {
	m := &models.Material{
		ID:               materialID,
		UserID:           sess.UserID,
		Title:            pipeline.ResolveTitle(title, "", sess.OriginalFilename),
		OriginalFilename: sess.OriginalFilename,
		MimeType:         sess.MimeType,
		FileSize:         sess.FileSize,
		Status:           models.MaterialPending,
		Step:             "QUEUED",
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Materials(tx).Create(ctx, m); err != nil {
			return err
		}
		return s.repos.Uploads(tx).LinkMaterial(ctx, sess.ID, materialID)
	})
	if errors.Is(err, common.ErrStateConflict) {
		return common.WrapError(common.CodeUploadInvalidState, "upload session changed while submitting", err)
	}
	if err != nil {
		return common.WrapError(common.CodeInternal, "failed to prepare material", err)
	}
	return nil
}
