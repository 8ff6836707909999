// Package server assembles the material processing service: it opens the
// database, object storage, queue, AI clients and knowledge index, and runs
// the queue worker next to a gRPC health endpoint until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/server/analyzer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/config"
	"github.com/dmitrijs2005/materialkeeper/internal/server/indexer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/parser"
	"github.com/dmitrijs2005/materialkeeper/internal/server/pipeline"
	"github.com/dmitrijs2005/materialkeeper/internal/server/queue"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage/miniostore"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage/s3store"
	"github.com/dmitrijs2005/materialkeeper/internal/server/tracing"
	"github.com/dmitrijs2005/materialkeeper/internal/server/worker"

	gs "github.com/dmitrijs2005/materialkeeper/internal/server/grpc"
)

// Version is reported to the tracing backend; set with -ldflags.
var Version = "dev"

const serviceName = "materialkeeper"

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config *config.Config
	logger logging.Logger

	db    *sql.DB
	repos repomanager.RepositoryManager
	rdb   *redis.Client
	queue *queue.Queue
	store pipeline.ObjectStore
	index *indexer.Index

	pipeline  *pipeline.Service
	submitter *worker.Submitter

	shutdownTracing tracing.ShutdownFunc
}

// NewApp connects every backend and runs the database migrations. Close
// releases what NewApp opened.
func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	app.shutdownTracing, err = tracing.Init(ctx, serviceName, Version, c.OTLPEndpoint, logger)
	if err != nil {
		return nil, err
	}

	app.db, app.repos, err = OpenDB(ctx, c)
	if err != nil {
		return nil, err
	}

	app.store, err = NewObjectStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	app.rdb, err = queue.Connect(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		return nil, err
	}
	app.queue = queue.New(app.rdb, c.QueueName)

	chat, err := analyzer.NewChatModel(c.AIHost, c.AIToken, c.AIChatModel)
	if err != nil {
		return nil, fmt.Errorf("chat model init error: %w", err)
	}
	embedder, err := indexer.NewEmbedder(c.AIHost, c.AIToken, c.AIEmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedder init error: %w", err)
	}
	app.index, err = indexer.Open(c.IndexPath, embedder, indexer.Options{
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
	}, logger)
	if err != nil {
		return nil, err
	}

	documents := parser.Default()
	app.pipeline = pipeline.NewService(app.db, app.repos, pipeline.Ports{
		Store:  app.store,
		Parser: documents,
		Analyzer: analyzer.New(chat, analyzer.Options{
			MaxChars: c.AnalyzerMaxChars,
			RPS:      c.AnalyzerRPS,
		}, logger),
		Index: app.index,
	}, logger)
	app.submitter = worker.NewSubmitter(app.db, app.repos, app.queue, documents, logger)

	return app, nil
}

func (app *App) Logger() logging.Logger { return app.logger }
func (app *App) Pipeline() *pipeline.Service { return app.pipeline }
func (app *App) Submitter() *worker.Submitter { return app.submitter }
func (app *App) Queue() *queue.Queue { return app.queue }
func (app *App) Index() *indexer.Index { return app.index }
func (app *App) Store() pipeline.ObjectStore { return app.store }
func (app *App) Config() *config.Config { return app.config }

// OpenDB connects to PostgreSQL and applies pending migrations.
func OpenDB(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, repos, nil
}

// NewObjectStore picks the storage adapter named by the config.
func NewObjectStore(ctx context.Context, c *config.Config, logger logging.Logger) (pipeline.ObjectStore, error) {
	switch c.StorageBackend {
	case config.StorageS3:
		return s3store.New(ctx, s3store.Options{
			Region:    c.S3Region,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			Endpoint:  c.S3BaseEndpoint,
		})
	case config.StorageMinio:
		endpoint, secure, err := minioEndpoint(c.S3BaseEndpoint, c.S3UseSSL)
		if err != nil {
			return nil, err
		}
		return miniostore.New(ctx, miniostore.Options{
			Endpoint:  endpoint,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			UseSSL:    secure,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// minioEndpoint reduces a URL such as http://host:9000/ to host:port. An
// https scheme turns TLS on.
func minioEndpoint(raw string, useSSL bool) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), useSSL, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid storage endpoint %q: %w", raw, err)
	}
	return u.Host, useSSL || u.Scheme == "https", nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run processes queued jobs and serves health checks until a signal arrives
// or one of them fails. Running jobs get ShutdownTimeout to finish.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	w, err := worker.New(app.queue, app.pipeline, app.db, app.repos, worker.Options{
		PoolSize:   app.config.WorkerPoolSize,
		PopTimeout: app.config.PopTimeout,
	}, app.logger)
	if err != nil {
		return err
	}
	health := gs.NewGRPCServer(app.config.HealthAddrGRPC, app.logger)

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs []error
	)
	fail := func(err error) {
		errMu.Lock()
		runErrs = append(runErrs, err)
		errMu.Unlock()
		cancelFunc()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := health.Run(ctx); err != nil {
			app.logger.Error(ctx, "health server failed", "error", err)
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		health.SetServing(true)
		if err := w.Run(ctx); err != nil {
			app.logger.Error(ctx, "worker failed", "error", err)
			fail(err)
		}
		health.SetServing(false)
	}()

	<-ctx.Done()
	app.logger.Info(ctx, "Shutting down...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(app.config.ShutdownTimeout):
		app.logger.Warn(ctx, "shutdown timed out, abandoning running jobs")
	}

	errMu.Lock()
	defer errMu.Unlock()
	return errors.Join(runErrs...)
}

// Close releases every backend opened by NewApp.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	if app.index != nil {
		errs = append(errs, app.index.Close())
	}
	if app.rdb != nil {
		errs = append(errs, app.rdb.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if app.shutdownTracing != nil {
		errs = append(errs, app.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}
