package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
	"github.com/dmitrijs2005/materialkeeper/internal/netx"
	"github.com/dmitrijs2005/materialkeeper/internal/server"
	"github.com/dmitrijs2005/materialkeeper/internal/server/config"
	"github.com/dmitrijs2005/materialkeeper/internal/server/indexer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/parser"
	"github.com/dmitrijs2005/materialkeeper/internal/server/pipeline"
	"github.com/dmitrijs2005/materialkeeper/internal/server/queue"
	"github.com/dmitrijs2005/materialkeeper/internal/server/worker"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadFile(c.String("config"))
}

// logger writes to stderr so stdout stays machine readable.
func logger(cfg *config.Config) logging.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func finalizeCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	progress := func(_ context.Context, step pipeline.Step, percent int, message string) error {
		_, err := fmt.Fprintf(c.App.ErrWriter, "[%3d%%] %-10s %s\n", percent, step, message)
		return err
	}

	summary, err := app.Pipeline().Finalize(ctx, pipeline.FinalizeRequest{
		UserID:   c.String("user"),
		UploadID: c.String("upload"),
		Title:    c.String("title"),
		ETag:     c.String("etag"),
	}, progress)
	if err != nil {
		return err
	}
	return printJSON(c, summary)
}

func submitCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, repos, err := server.OpenDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := queue.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	submitter := worker.NewSubmitter(db, repos, queue.New(rdb, cfg.QueueName), parser.Default(), logger(cfg))
	sub, err := submitter.Submit(ctx, worker.SubmitRequest{
		UserID:   c.String("user"),
		UploadID: c.String("upload"),
		Title:    c.String("title"),
		ETag:     c.String("etag"),
	})
	if err != nil {
		return err
	}
	return printJSON(c, sub)
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rdb, err := queue.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	st, err := queue.New(rdb, cfg.QueueName).GetStatus(ctx, c.String("job"))
	if err != nil {
		return fmt.Errorf("job %s: %w", c.String("job"), err)
	}
	return printJSON(c, st)
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	embedder, err := indexer.NewEmbedder(cfg.AIHost, cfg.AIToken, cfg.AIEmbeddingModel)
	if err != nil {
		return err
	}
	ix, err := indexer.Open(cfg.IndexPath, embedder, indexer.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, logger(cfg))
	if err != nil {
		return err
	}
	defer ix.Close()

	hits, err := ix.Search(ctx, c.String("user"), c.String("query"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(c, hits)
}

func presignCommand(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := server.NewObjectStore(ctx, cfg, logger(cfg))
	if err != nil {
		return err
	}

	url, err := store.CreatePresignedPutURL(ctx, c.String("key"), c.String("type"), cfg.PresignTTL)
	if err != nil {
		return err
	}
	path := c.String("file")
	if path == "" {
		_, err = fmt.Fprintln(c.App.Writer, url)
		return err
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	etag, err := netx.PutPresigned(ctx, nil, url, c.String("type"), body)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{"key": c.String("key"), "size": len(body), "etag": etag})
}
