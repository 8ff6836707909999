// Package queue is a Redis-backed job queue for asynchronous material
// processing. Jobs travel through a list; each job has a separate status
// record that callers can poll.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
)

var tracer = otel.Tracer("materialkeeper/queue")

// StatusTTL is how long job status records are kept.
const StatusTTL = 7 * 24 * time.Hour

// Envelope is the list element wrapping a job.
type Envelope struct {
	ID         string               `json:"id"`
	Job        models.ProcessingJob `json:"job"`
	EnqueuedAt time.Time            `json:"enqueuedAt"`
}

// JobOptions controls how a job is enqueued. A non-empty JobID makes Add
// idempotent for that id.
type JobOptions struct {
	JobID string
}

// Queue is a named Redis list plus per-job status keys.
type Queue struct {
	rdb  redis.Cmdable
	name string
}

// Connect opens a Redis client and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func New(rdb redis.Cmdable, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

func (q *Queue) listKey() string { return q.name + ":jobs" }

func (q *Queue) statusKey(id string) string { return q.name + ":status:" + id }

// Add enqueues job and records it as queued. It reports false without
// enqueuing when a job with the same id already exists.
func (q *Queue) Add(ctx context.Context, job models.ProcessingJob, opts JobOptions) (string, bool, error) {
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, span := tracer.Start(ctx, "redis.queue_add", trace.WithAttributes(attribute.String("job_id", id)))
	defer span.End()

	now := time.Now().UTC()
	status, err := json.Marshal(models.JobStatus{ID: id, State: models.JobQueued, UpdatedAt: now})
	if err != nil {
		return "", false, err
	}
	created, err := q.rdb.SetNX(ctx, q.statusKey(id), status, StatusTTL).Result()
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("failed to reserve job: %w", err)
	}
	if !created {
		span.SetAttributes(attribute.Bool("duplicate", true))
		return id, false, nil
	}

	env, err := json.Marshal(Envelope{ID: id, Job: job, EnqueuedAt: now})
	if err != nil {
		return "", false, err
	}
	if err := q.rdb.LPush(ctx, q.listKey(), env).Err(); err != nil {
		span.RecordError(err)
		// release the reservation so the caller can retry
		_ = q.rdb.Del(ctx, q.statusKey(id)).Err()
		return "", false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, true, nil
}

// Pop blocks up to timeout for the next job. It returns nil, nil when the
// timeout expires with the queue empty.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.listKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}
	// BRPOP replies with [list, element]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected pop reply of %d elements", len(res))
	}

	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &env, nil
}

// SetStatus overwrites the status record of st.ID.
func (q *Queue) SetStatus(ctx context.Context, st models.JobStatus) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := q.rdb.Set(ctx, q.statusKey(st.ID), data, StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set job status: %w", err)
	}
	return nil
}

// GetStatus returns the status of job id or common.ErrorNotFound.
func (q *Queue) GetStatus(ctx context.Context, id string) (*models.JobStatus, error) {
	data, err := q.rdb.Get(ctx, q.statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	var st models.JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}
	return &st, nil
}

// Len returns the number of jobs waiting in the list.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.listKey()).Result()
}
