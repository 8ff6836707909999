package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test"), mr
}

func TestAdd_EnqueuesAndRecordsQueued(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	job := models.ProcessingJob{UserID: "u1", UploadID: "up-1", Title: "T"}

	id, added, err := q.Add(ctx, job, JobOptions{JobID: "up-1"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "up-1", id)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := q.GetStatus(ctx, "up-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobQueued, st.State)
}

func TestAdd_DuplicateIsNoop(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	job := models.ProcessingJob{UserID: "u1", UploadID: "up-1"}

	_, _, err := q.Add(ctx, job, JobOptions{JobID: "up-1"})
	require.NoError(t, err)
	_, added, err := q.Add(ctx, job, JobOptions{JobID: "up-1"})
	require.NoError(t, err)
	assert.False(t, added)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdd_GeneratesID(t *testing.T) {
	q, _ := newTestQueue(t)

	id, added, err := q.Add(context.Background(), models.ProcessingJob{UploadID: "x"}, JobOptions{})
	require.NoError(t, err)
	assert.True(t, added)
	assert.NotEmpty(t, id)
}

func TestPop_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.Add(ctx, models.ProcessingJob{UploadID: "first"}, JobOptions{JobID: "first"})
	require.NoError(t, err)
	_, _, err = q.Add(ctx, models.ProcessingJob{UploadID: "second"}, JobOptions{JobID: "second"})
	require.NoError(t, err)

	env, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "first", env.ID)
	assert.Equal(t, "first", env.Job.UploadID)

	env, err = q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "second", env.ID)
}

func TestPop_EmptyTimesOut(t *testing.T) {
	q, _ := newTestQueue(t)

	env, err := q.Pop(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestPop_BadPayload(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Lpush("test:jobs", "{not json")
	require.NoError(t, err)

	_, err = q.Pop(context.Background(), time.Second)
	assert.Error(t, err)
}

func TestStatus_RoundTripAndMissing(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.SetStatus(ctx, models.JobStatus{
		ID: "j", State: models.JobFailed, Progress: 100, Step: "FAILED",
		Error: "boom", ErrorCode: "UNKNOWN", MaterialID: "m-1",
	}))

	st, err := q.GetStatus(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, st.State)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "m-1", st.MaterialID)
	assert.False(t, st.UpdatedAt.IsZero())

	_, err = q.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	c, err := Connect(context.Background(), addr, "", 0)
	require.NoError(t, err)
	_ = c.Close()

	mr.Close()
	_, err = Connect(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
