package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/dbx"
	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/analyzer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/indexer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
	"github.com/dmitrijs2005/materialkeeper/internal/server/parser"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/materials"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

// -------- repositories --------

type fakeUploads struct {
	uploads.Repository
	sessions map[string]*models.UploadSession

	writes         int
	expiredApplied int
	getErr         error
	completeErr    error
}

func (f *fakeUploads) GetForUser(ctx context.Context, userID, id string) (*models.UploadSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeUploads) MarkExpired(ctx context.Context, id string) (bool, error) {
	f.writes++
	s := f.sessions[id]
	if s == nil || s.Status != models.UploadInitiated {
		return false, nil
	}
	s.Status = models.UploadExpired
	f.expiredApplied++
	return true, nil
}

func (f *fakeUploads) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	f.writes++
	s := f.sessions[id]
	if s == nil || s.Status != models.UploadInitiated {
		return false, nil
	}
	s.Status = models.UploadFailed
	s.FailureReason = reason
	return true, nil
}

func (f *fakeUploads) MarkCompleted(ctx context.Context, id, materialID, finalKey, etag string, completedAt time.Time) error {
	f.writes++
	if f.completeErr != nil {
		return f.completeErr
	}
	s := f.sessions[id]
	if s == nil || s.Status != models.UploadInitiated {
		return common.ErrStateConflict
	}
	s.Status = models.UploadCompleted
	s.MaterialID = materialID
	s.FinalKey = finalKey
	s.ETag = etag
	s.CompletedAt = &completedAt
	return nil
}

type fakeMaterials struct {
	materials.Repository
	rows     map[string]*models.Material
	outlines map[string][]*models.OutlineNode

	writes    int
	createErr error
	findErr   error
}

func (f *fakeMaterials) Create(ctx context.Context, m *models.Material) error {
	f.writes++
	if f.createErr != nil {
		return f.createErr
	}
	cp := *m
	f.rows[m.ID] = &cp
	return nil
}

func (f *fakeMaterials) FindByChecksum(ctx context.Context, userID, checksum string) (*models.Material, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, m := range f.rows {
		if m.UserID == userID && m.Checksum == checksum && m.DeletedAt == nil {
			cp := *m
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeMaterials) MarkProcessing(ctx context.Context, id string) (bool, error) {
	f.writes++
	m := f.rows[id]
	if m == nil || m.Status.Terminal() {
		return false, nil
	}
	m.Status = models.MaterialProcessing
	return true, nil
}

func (f *fakeMaterials) MarkReady(ctx context.Context, in *models.Material) error {
	f.writes++
	m := f.rows[in.ID]
	if m == nil || m.Status.Terminal() {
		return common.ErrStateConflict
	}
	cp := *in
	cp.CreatedAt = m.CreatedAt
	f.rows[in.ID] = &cp
	return nil
}

func (f *fakeMaterials) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	f.writes++
	m := f.rows[id]
	if m == nil || m.Status.Terminal() {
		return false, nil
	}
	m.Status = models.MaterialFailed
	m.ErrorMessage = message
	m.Progress = 100
	m.Step = "FAILED"
	return true, nil
}

func (f *fakeMaterials) HardDelete(ctx context.Context, id string) error {
	f.writes++
	delete(f.rows, id)
	delete(f.outlines, id)
	return nil
}

func (f *fakeMaterials) ReplaceOutline(ctx context.Context, materialID string, nodes []*models.OutlineNode) error {
	f.writes++
	f.outlines[materialID] = nodes
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	uploads   *fakeUploads
	materials *fakeMaterials
}

func (f *fakeRepoManager) Uploads(db dbx.DBTX) uploads.Repository     { return f.uploads }
func (f *fakeRepoManager) Materials(db dbx.DBTX) materials.Repository { return f.materials }

// -------- ports --------

type object struct {
	data        []byte
	contentType string
	etag        string
	// reportedSize overrides len(data) in HeadObject when set.
	reportedSize *int64
}

type fakeStore struct {
	ObjectStore
	objects map[string]*object

	writes    int
	headErr   error
	getErr    error
	copyErr   error
	deleteErr map[string]error
}

func (f *fakeStore) HeadObject(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	o, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	size := int64(len(o.data))
	if o.reportedSize != nil {
		size = *o.reportedSize
	}
	return &storage.ObjectInfo{Size: &size, ContentType: o.contentType, ETag: o.etag}, nil
}

func (f *fakeStore) GetObjectBytes(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return bytes.Clone(o.data), nil
}

func (f *fakeStore) CopyObject(ctx context.Context, src, dst, contentType string) error {
	f.writes++
	if f.copyErr != nil {
		return f.copyErr
	}
	o, ok := f.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	f.objects[dst] = &object{data: o.data, contentType: contentType, etag: o.etag}
	return nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, key string) error {
	f.writes++
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	delete(f.objects, key)
	return nil
}

type fakeParser struct {
	DocumentParser
	err error
}

func (f *fakeParser) ParseFileBytesSource(ctx context.Context, content []byte, mimeType, filename string, size int64) (*parser.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &parser.Document{FullText: "extracted text", Format: "pdf"}, nil
}

type fakeAnalyzer struct {
	fn    func() (*analyzer.Analysis, error)
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, materialID, fullText, mimeType string) (*analyzer.Analysis, error) {
	f.calls++
	if f.fn != nil {
		return f.fn()
	}
	return &analyzer.Analysis{
		Title:   "Lecture 1",
		Summary: "Intro\x00 to sagas",
		Outline: []analyzer.OutlineRow{
			{Title: "Basics", Level: 1},
			{Title: "Steps", Level: 2},
			{Title: "Rollback", Level: 1},
		},
	}, nil
}

type fakeIndex struct {
	docs      map[indexer.Key]string
	ingests   int
	deletes   int
	ingestErr error
}

func (f *fakeIndex) Ingest(ctx context.Context, req indexer.IngestRequest) (int, error) {
	f.ingests++
	if f.ingestErr != nil {
		return 0, f.ingestErr
	}
	f.docs[req.Key] = req.Text
	return 1, nil
}

func (f *fakeIndex) DeleteByFilter(ctx context.Context, key indexer.Key) error {
	f.deletes++
	delete(f.docs, key)
	return nil
}

// -------- harness --------

type progressEvent struct {
	step    Step
	percent int
}

type harness struct {
	svc       *Service
	mock      sqlmock.Sqlmock
	uploads   *fakeUploads
	materials *fakeMaterials
	store     *fakeStore
	parser    *fakeParser
	analyzer  *fakeAnalyzer
	index     *fakeIndex
	now       time.Time
	events    []progressEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		mock:      mock,
		uploads:   &fakeUploads{sessions: map[string]*models.UploadSession{}},
		materials: &fakeMaterials{rows: map[string]*models.Material{}, outlines: map[string][]*models.OutlineNode{}},
		store:     &fakeStore{objects: map[string]*object{}, deleteErr: map[string]error{}},
		parser:    &fakeParser{},
		analyzer:  &fakeAnalyzer{},
		index:     &fakeIndex{docs: map[indexer.Key]string{}},
		now:       time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	repos := &fakeRepoManager{uploads: h.uploads, materials: h.materials}
	h.svc = NewService(db, repos, Ports{
		Store:    h.store,
		Parser:   h.parser,
		Analyzer: h.analyzer,
		Index:    h.index,
	}, logging.Nop())
	h.svc.now = func() time.Time { return h.now }

	n := 0
	h.svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return h
}

const (
	testUser   = "u1"
	testUpload = "up-1"
	testTemp   = "uploads/u1/up-1"
)

// seed stores an INITIATED session and its temp object.
func (h *harness) seed(content []byte) *models.UploadSession {
	s := &models.UploadSession{
		ID:               testUpload,
		UserID:           testUser,
		Status:           models.UploadInitiated,
		TempKey:          testTemp,
		MimeType:         "application/pdf",
		FileSize:         int64(len(content)),
		OriginalFilename: "Lecture Notes.PDF",
		ExpiresAt:        h.now.Add(time.Hour),
	}
	h.uploads.sessions[s.ID] = s
	h.store.objects[testTemp] = &object{data: content, contentType: "application/pdf", etag: `"abc"`}
	return s
}

// seedAsync additionally pre-creates a PENDING material linked to the session.
func (h *harness) seedAsync(content []byte) *models.Material {
	s := h.seed(content)
	m := &models.Material{ID: "m-pre", UserID: testUser, Status: models.MaterialPending, MimeType: s.MimeType}
	h.materials.rows[m.ID] = m
	s.MaterialID = m.ID
	return m
}

func (h *harness) sink() ProgressFunc {
	return func(ctx context.Context, step Step, percent int, message string) error {
		h.events = append(h.events, progressEvent{step, percent})
		return nil
	}
}

func (h *harness) expectTx(commit bool) {
	h.mock.ExpectBegin()
	if commit {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
}

func (h *harness) assertMonotonic(t *testing.T) {
	t.Helper()
	require.NotEmpty(t, h.events)
	for i := 1; i < len(h.events); i++ {
		require.GreaterOrEqual(t, h.events[i].percent, h.events[i-1].percent, "progress decreased at %d: %v", i, h.events)
	}
	require.Equal(t, 100, h.events[len(h.events)-1].percent)
}
