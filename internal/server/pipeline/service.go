package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/analyzer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
	"github.com/dmitrijs2005/materialkeeper/internal/server/parser"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/repomanager"
)

var tracer = otel.Tracer("materialkeeper/pipeline")

// Service runs the upload finalization saga. Finalize runs it for a caller
// that waits for the result, Process for a job pre-created by Submit. A
// failed run is compensated before the error is returned.
type Service struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	store    ObjectStore
	parser   DocumentParser
	analyzer ContentAnalyzer
	index    KnowledgeIndexer
	log      logging.Logger

	now   func() time.Time
	newID func() string
}

// NewService builds a Service over the given database and ports. Every run
// gets a fresh material id from uuid and timestamps in UTC.
func NewService(db *sql.DB, repos repomanager.RepositoryManager, ports Ports, log logging.Logger) *Service {
	return &Service{
		db:       db,
		repos:    repos,
		store:    ports.Store,
		parser:   ports.Parser,
		analyzer: ports.Analyzer,
		index:    ports.Index,
		log:      log.With("module", "pipeline"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Finalize turns the upload into a new READY material and waits for the
// result. On failure the session is FAILED and nothing of the material
// remains, except when the content is a duplicate: then the session stays
// INITIATED and the error carries the existing material id.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest, progress ProgressFunc) (*MaterialSummary, error) {
	return s.run(ctx, Sync, req, progress)
}

// Process runs a queued job against the material pre-created by Submit. On
// failure that material is left FAILED with the error message.
func (s *Service) Process(ctx context.Context, job models.ProcessingJob, progress ProgressFunc) (*MaterialSummary, error) {
	return s.run(ctx, Async, FinalizeRequest{
		UserID:   job.UserID,
		UploadID: job.UploadID,
		Title:    job.Title,
		ETag:     job.ETag,
	}, progress)
}

// invocation is the state shared by the steps of one invocation.
type invocation struct {
	mode     Mode
	req      FinalizeRequest
	rb       *rollback
	progress *reporter

	session  *models.UploadSession
	etag     string
	content  []byte
	checksum string

	materialID string
	finalKey   string

	doc      *parser.Document
	analysis *analyzer.Analysis
	title    string
	summary  string
	outline  []*models.OutlineNode
}

func (s *Service) run(ctx context.Context, mode Mode, req FinalizeRequest, progress ProgressFunc) (*MaterialSummary, error) {
	ctx, span := tracer.Start(ctx, "pipeline.finalize", trace.WithAttributes(
		attribute.String("mode", mode.Name),
		attribute.String("upload_id", req.UploadID),
	))
	defer span.End()

	log := s.log.With("mode", mode.Name, "upload_id", req.UploadID, "user_id", req.UserID)
	r := &invocation{
		mode:     mode,
		req:      req,
		rb:       &rollback{userID: req.UserID},
		progress: newReporter(progress, log),
	}

	failed, err := s.execute(ctx, r, s.steps())
	if err != nil {
		coded := common.AsCoded(err)
		span.RecordError(coded)
		span.SetStatus(codes.Error, string(coded.Code))

		switch {
		case coded.Code == common.CodeUploadAlreadyCompleted:
		case failed.compensate && !failed.keepsUpload(coded):
			s.compensate(ctx, r.rb, coded)
		default:
			s.compensate(ctx, r.rb.materialOnly(), coded)
		}
		r.progress.failed(ctx, coded.Message)
		log.Warn(ctx, "finalization failed", "step", failed.name, "code", coded.Code, "error", coded)
		return nil, coded
	}

	r.progress.completed(ctx)
	log.Info(ctx, "material ready", "material_id", r.materialID)
	return &MaterialSummary{
		Mode:       mode.Name,
		MaterialID: r.materialID,
		Title:      r.title,
		Status:     string(models.MaterialReady),
		Summary:    r.summary,
	}, nil
}

// execute runs steps in order and stops at the first failure, returning the
// failed step.
func (s *Service) execute(ctx context.Context, r *invocation, steps []step) (step, error) {
	for _, st := range steps {
		r.progress.report(ctx, st.stage, st.percent, st.message)
		if err := s.runStep(ctx, r, st); err != nil {
			return st, err
		}
	}
	return step{}, nil
}

func (s *Service) runStep(ctx context.Context, r *invocation, st step) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline."+st.name)
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			err = common.WrapError(common.CodeUnknown, fmt.Sprintf("%s step panicked", st.name), fmt.Errorf("%v", p))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, st.name)
		}
	}()
	s.log.Debug(ctx, "pipeline step", "step", st.name, "upload_id", r.req.UploadID)
	return st.run(s, ctx, r)
}
