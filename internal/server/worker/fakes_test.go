package worker

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/dbx"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
	"github.com/dmitrijs2005/materialkeeper/internal/server/queue"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/materials"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/uploads"
)

type fakeUploads struct {
	uploads.Repository
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
	linkErr  error
}

func (f *fakeUploads) GetForUser(ctx context.Context, userID, id string) (*models.UploadSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeUploads) LinkMaterial(ctx context.Context, id, materialID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	f.sessions[id].MaterialID = materialID
	return nil
}

type progressCall struct {
	id       string
	progress int
	step     string
}

type fakeMaterials struct {
	materials.Repository
	mu       sync.Mutex
	created  []*models.Material
	progress []progressCall
}

func (f *fakeMaterials) Create(ctx context.Context, m *models.Material) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMaterials) UpdateProgress(ctx context.Context, id string, progress int, step string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progressCall{id, progress, step})
	return true, nil
}

func (f *fakeMaterials) progressCalls() []progressCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]progressCall(nil), f.progress...)
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	uploads   *fakeUploads
	materials *fakeMaterials
}

func (f *fakeRepoManager) Uploads(db dbx.DBTX) uploads.Repository     { return f.uploads }
func (f *fakeRepoManager) Materials(db dbx.DBTX) materials.Repository { return f.materials }

func newRepos(sessions ...*models.UploadSession) *fakeRepoManager {
	m := map[string]*models.UploadSession{}
	for _, s := range sessions {
		m[s.ID] = s
	}
	return &fakeRepoManager{
		uploads:   &fakeUploads{sessions: m},
		materials: &fakeMaterials{},
	}
}

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return queue.New(rdb, "materials")
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}
