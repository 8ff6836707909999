package worker

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/models"
	"github.com/dmitrijs2005/materialkeeper/internal/server/pipeline"
	"github.com/dmitrijs2005/materialkeeper/internal/server/queue"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/repomanager"
)

const popRetryDelay = time.Second

// JobSource is implemented by queue.Queue.
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Envelope, error)
	SetStatus(ctx context.Context, st models.JobStatus) error
}

// Processor is implemented by pipeline.Service.
type Processor interface {
	Process(ctx context.Context, job models.ProcessingJob, progress pipeline.ProgressFunc) (*pipeline.MaterialSummary, error)
}

type Options struct {
	PoolSize   int
	PopTimeout time.Duration
}

// Worker pops jobs and runs each on a pooled goroutine.
type Worker struct {
	source    JobSource
	processor Processor
	db        *sql.DB
	repos     repomanager.RepositoryManager
	pool      *ants.Pool
	timeout   time.Duration
	log       logging.Logger
	wg        sync.WaitGroup
}

// New builds a Worker that runs up to opts.PoolSize jobs at once. A zero
// PopTimeout waits five seconds per blocking pop. Call Run to start it.
func New(source JobSource, processor Processor, db *sql.DB, repos repomanager.RepositoryManager, opts Options, log logging.Logger) (*Worker, error) {
	log = log.With("module", "worker")
	size := max(opts.PoolSize, 1)
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(p any) {
		log.Error(context.Background(), "job panicked", "panic", p)
	}))
	if err != nil {
		return nil, err
	}

	timeout := opts.PopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{
		source:    source,
		processor: processor,
		db:        db,
		repos:     repos,
		pool:      pool,
		timeout:   timeout,
		log:       log,
	}, nil
}

// Run consumes jobs until ctx is done, then waits for running jobs and
// releases the pool. Submitting blocks while every pool goroutine is busy.
func (w *Worker) Run(ctx context.Context) error {
	defer w.pool.Release()
	defer w.wg.Wait()

	w.log.Info(ctx, "worker started", "pool_size", w.pool.Cap())
	for {
		if ctx.Err() != nil {
			w.log.Info(ctx, "worker stopping")
			return nil
		}

		env, err := w.source.Pop(ctx, w.timeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Warn(ctx, "failed to pop job", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(popRetryDelay):
			}
			continue
		}
		if env == nil {
			continue
		}

		// jobs outlive the consumer loop so shutdown drains them
		jobCtx := context.WithoutCancel(ctx)
		w.wg.Add(1)
		if err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.handle(jobCtx, env)
		}); err != nil {
			w.wg.Done()
			w.log.Error(ctx, "failed to schedule job", "job_id", env.ID, "error", err)
			w.setStatus(ctx, failedStatus(env.ID, "", err))
		}
	}
}

func (w *Worker) handle(ctx context.Context, env *queue.Envelope) {
	log := w.log.With("job_id", env.ID, "upload_id", env.Job.UploadID)
	materialID := w.linkedMaterial(ctx, env.Job)

	status := models.JobStatus{ID: env.ID, State: models.JobActive, MaterialID: materialID}
	w.setStatus(ctx, status)

	sink := func(ctx context.Context, step pipeline.Step, percent int, message string) error {
		status.Progress = percent
		status.Step = string(step)
		status.Message = message
		if materialID != "" {
			if _, err := w.repos.Materials(w.db).UpdateProgress(ctx, materialID, percent, string(step)); err != nil {
				return err
			}
		}
		return w.source.SetStatus(ctx, status)
	}

	summary, err := w.processor.Process(ctx, env.Job, sink)
	if err != nil {
		log.Warn(ctx, "job failed", "error", err)
		w.setStatus(ctx, failedStatus(env.ID, materialID, err))
		return
	}

	log.Info(ctx, "job completed", "material_id", summary.MaterialID)
	w.setStatus(ctx, models.JobStatus{
		ID:         env.ID,
		State:      models.JobCompleted,
		Progress:   100,
		Step:       string(pipeline.StepCompleted),
		MaterialID: summary.MaterialID,
	})
}

// linkedMaterial returns the material Submit linked to the job's upload so
// that progress can be written to it. Failures only cost progress updates.
func (w *Worker) linkedMaterial(ctx context.Context, job models.ProcessingJob) string {
	sess, err := w.repos.Uploads(w.db).GetForUser(ctx, job.UserID, job.UploadID)
	if err != nil {
		w.log.Debug(ctx, "no session for job", "upload_id", job.UploadID, "error", err)
		return ""
	}
	return sess.MaterialID
}

func (w *Worker) setStatus(ctx context.Context, st models.JobStatus) {
	if err := w.source.SetStatus(ctx, st); err != nil {
		w.log.Warn(ctx, "failed to set job status", "job_id", st.ID, "error", err)
	}
}

func failedStatus(id, materialID string, err error) models.JobStatus {
	coded := common.AsCoded(err)
	msg := coded.Message
	if coded.Err != nil {
		msg += ": " + coded.Err.Error()
	}
	return models.JobStatus{
		ID:         id,
		State:      models.JobFailed,
		Progress:   100,
		Step:       string(pipeline.StepFailed),
		Error:      msg,
		ErrorCode:  string(coded.Code),
		MaterialID: materialID,
	}
}
