package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/dbx"
	"github.com/dmitrijs2005/materialkeeper/internal/server/analyzer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/indexer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

const untitled = "Untitled"

var extPattern = regexp.MustCompile(`^[a-z0-9]{1,10}$`)

// step is one fallible stage of a run. compensate tells whether a failure
// in it must undo the upload side effects.
type step struct {
	name       string
	stage      Step
	percent    int
	message    string
	compensate bool
	run        func(s *Service, ctx context.Context, r *invocation) error
}

// keepsUpload reports whether err ends the run without undoing the upload.
// A duplicate hit leaves the session INITIATED and the temp object in place;
// any other dedup failure is compensated like every later step.
func (st step) keepsUpload(err *common.Error) bool {
	return st.name == "dedup" && err.Code == common.CodeMaterialDuplicate
}

func (s *Service) steps() []step {
	return []step{
		{"load", StepPreparing, 5, "loading upload session", false, (*Service).loadSession},
		{"verify", StepVerifying, 15, "verifying uploaded object", true, (*Service).verifyObject},
		{"download", StepLoading, 30, "downloading content", true, (*Service).download},
		{"dedup", StepChecking, 40, "checking for duplicates", true, (*Service).dedup},
		{"relocate", StepStoring, 50, "storing material", true, (*Service).relocate},
		{"extract", StepAnalyzing, 60, "extracting text", true, (*Service).extract},
		{"analyze", StepAnalyzing, 75, "analyzing content", true, (*Service).analyze},
		{"index", StepAnalyzing, 90, "indexing content", true, (*Service).ingest},
		{"persist", StepFinalizing, 95, "saving material", true, (*Service).persist},
	}
}

func (s *Service) loadSession(ctx context.Context, r *invocation) error {
	repo := s.repos.Uploads(s.db)

	sess, err := repo.GetForUser(ctx, r.req.UserID, r.req.UploadID)
	if errors.Is(err, common.ErrorNotFound) {
		return common.NewError(common.CodeUploadNotFound, "upload session not found").
			WithDetail("uploadId", r.req.UploadID)
	}
	if err != nil {
		return err
	}

	// the material of an async run is known before the session is validated
	if !r.mode.AllocateMaterial && sess.MaterialID != "" {
		r.materialID = sess.MaterialID
		r.rb.materialID = sess.MaterialID
	}

	switch sess.Status {
	case models.UploadCompleted:
		return common.NewError(common.CodeUploadAlreadyCompleted, "upload session already completed").
			WithDetail("materialId", sess.MaterialID)
	case models.UploadExpired:
		return common.NewError(common.CodeUploadExpired, "upload session expired")
	case models.UploadFailed:
		return common.NewError(common.CodeUploadInvalidState, "upload session already failed")
	}

	if sess.Expired(s.now()) {
		applied, err := repo.MarkExpired(ctx, sess.ID)
		if err != nil {
			return err
		}
		if applied {
			s.log.Info(ctx, "upload session expired", "upload_id", sess.ID)
		}
		return common.NewError(common.CodeUploadExpired, "upload session expired")
	}

	// a session linked by Submit belongs to the worker
	if r.mode.AllocateMaterial && sess.MaterialID != "" {
		return common.NewError(common.CodeUploadInvalidState, "upload session is queued for background processing").
			WithDetail("materialId", sess.MaterialID)
	}

	if !r.mode.AllocateMaterial {
		if r.materialID == "" {
			return common.NewError(common.CodeUploadInvalidState, "upload session has no linked material")
		}
		ok, err := s.repos.Materials(s.db).MarkProcessing(ctx, r.materialID)
		if err != nil {
			return err
		}
		if !ok {
			return common.NewError(common.CodeUploadInvalidState, "material is no longer processable").
				WithDetail("materialId", r.materialID)
		}
	}

	r.session = sess
	r.rb.sessionID = sess.ID
	r.rb.tempKey = sess.TempKey
	return nil
}

func (s *Service) verifyObject(ctx context.Context, r *invocation) error {
	info, err := headUpload(ctx, s.store, r.session.TempKey)
	if err != nil {
		return err
	}
	if err := Verify(info, Declared{
		MimeType: r.session.MimeType,
		Size:     r.session.FileSize,
		ETag:     r.req.ETag,
	}); err != nil {
		return err
	}

	r.etag = storage.NormalizeETag(info.ETag)
	if r.etag == "" {
		r.etag = storage.NormalizeETag(r.req.ETag)
	}
	return nil
}

func (s *Service) download(ctx context.Context, r *invocation) error {
	content, err := s.store.GetObjectBytes(ctx, r.session.TempKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return common.WrapError(common.CodeUploadObjectNotFound, "uploaded object not found", err)
	}
	if err != nil {
		return err
	}
	if int64(len(content)) != r.session.FileSize {
		return common.NewError(common.CodeUploadSizeMismatch,
			fmt.Sprintf("downloaded %d bytes, declared %d", len(content), r.session.FileSize)).
			WithDetail("observed", len(content)).
			WithDetail("declared", r.session.FileSize)
	}
	r.content = content
	return nil
}

func (s *Service) dedup(ctx context.Context, r *invocation) error {
	r.checksum = Checksum(r.content)

	existing, err := findDuplicate(ctx, s.repos.Materials(s.db), r.req.UserID, r.checksum)
	if err != nil {
		return err
	}
	if existing != "" && existing != r.materialID {
		return duplicateError(existing)
	}
	return nil
}

func (s *Service) relocate(ctx context.Context, r *invocation) error {
	if r.mode.AllocateMaterial {
		r.materialID = s.newID()
		r.rb.materialID = r.materialID
		r.rb.ownsMaterial = true
	}

	key := FinalKey(r.req.UserID, r.materialID, r.session.OriginalFilename, s.now())
	if err := s.store.CopyObject(ctx, r.session.TempKey, key, r.session.MimeType); err != nil {
		return err
	}
	r.finalKey = key
	r.rb.finalKey = key

	if err := s.store.DeleteObject(ctx, r.session.TempKey); err != nil {
		return err
	}
	r.rb.tempKey = ""
	return nil
}

func (s *Service) extract(ctx context.Context, r *invocation) error {
	doc, err := s.parser.ParseFileBytesSource(ctx, r.content, r.session.MimeType,
		r.session.OriginalFilename, int64(len(r.content)))
	if err != nil {
		return err
	}
	r.doc = doc
	return nil
}

func (s *Service) analyze(ctx context.Context, r *invocation) error {
	a, err := s.analyzer.Analyze(ctx, r.materialID, r.doc.FullText, r.session.MimeType)
	if err != nil {
		return err
	}
	if a == nil {
		a = &analyzer.Analysis{}
	}
	r.analysis = a
	r.title = ResolveTitle(r.req.Title, a.Title, r.session.OriginalFilename)
	r.summary = strings.TrimSpace(stripNUL(a.Summary))
	r.outline = buildOutline(r.materialID, a.Outline, s.newID)
	return nil
}

func (s *Service) ingest(ctx context.Context, r *invocation) error {
	r.rb.indexed = true
	_, err := s.index.Ingest(ctx, indexer.IngestRequest{
		Key:      indexer.MaterialKey(r.req.UserID, r.materialID),
		Title:    r.title,
		Text:     r.doc.FullText,
		MimeType: r.session.MimeType,
	})
	return err
}

// persist writes the material, its outline and the session completion in
// one transaction.
func (s *Service) persist(ctx context.Context, r *invocation) error {
	now := s.now()
	m := &models.Material{
		ID:               r.materialID,
		UserID:           r.req.UserID,
		Title:            r.title,
		OriginalFilename: r.session.OriginalFilename,
		StorageKey:       r.finalKey,
		MimeType:         r.session.MimeType,
		FileSize:         r.session.FileSize,
		Checksum:         r.checksum,
		Status:           models.MaterialReady,
		Progress:         100,
		Step:             string(StepCompleted),
		Summary:          r.summary,
		ProcessedAt:      &now,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		materialsRepo := s.repos.Materials(tx)

		var err error
		if r.mode.AllocateMaterial {
			err = materialsRepo.Create(ctx, m)
		} else {
			err = materialsRepo.MarkReady(ctx, m)
		}
		if err != nil {
			return err
		}
		if err := materialsRepo.ReplaceOutline(ctx, m.ID, r.outline); err != nil {
			return err
		}
		return s.repos.Uploads(tx).MarkCompleted(ctx, r.session.ID, m.ID, r.finalKey, r.etag, now)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorAlreadyExists):
		// a concurrent run stored the same content first
		return common.WrapError(common.CodeMaterialDuplicate, "identical material already exists", err)
	case errors.Is(err, common.ErrStateConflict):
		return common.WrapError(common.CodeUploadInvalidState, "upload session or material changed state during finalization", err)
	default:
		return err
	}
}

// FinalKey is the permanent object key of a material:
// materials/{user}/{yyyy}/{mm}/{material}[.{ext}]. The extension is kept
// only when it is 1 to 10 ASCII letters or digits.
func FinalKey(userID, materialID, filename string, at time.Time) string {
	key := fmt.Sprintf("materials/%s/%04d/%02d/%s", userID, at.Year(), int(at.Month()), materialID)
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if extPattern.MatchString(ext) {
		key += "." + ext
	}
	return key
}

// ResolveTitle picks the first non-blank of the caller title, the analyzer
// title and the filename.
func ResolveTitle(requested, suggested, filename string) string {
	for _, t := range []string{requested, suggested, filename} {
		if t = strings.TrimSpace(stripNUL(t)); t != "" {
			return t
		}
	}
	return untitled
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// buildOutline turns analyzer rows into nodes, deriving each parent from the
// nearest preceding shallower row. A row can be at most one level deeper
// than the row before it.
func buildOutline(materialID string, rows []analyzer.OutlineRow, newID func() string) []*models.OutlineNode {
	nodes := make([]*models.OutlineNode, 0, len(rows))
	var parents []string
	for _, row := range rows {
		title := strings.TrimSpace(stripNUL(row.Title))
		if title == "" {
			continue
		}
		depth := min(max(row.Level, 1), len(parents)+1)
		parents = parents[:depth-1]

		n := &models.OutlineNode{
			ID:         newID(),
			MaterialID: materialID,
			Position:   len(nodes),
			Depth:      depth,
			Title:      title,
			Summary:    strings.TrimSpace(stripNUL(row.Summary)),
		}
		if depth > 1 {
			n.ParentID = parents[depth-2]
		}
		nodes = append(nodes, n)
		parents = append(parents, n.ID)
	}
	return nodes
}
