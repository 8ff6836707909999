// Package indexer maintains the per-user knowledge index: material text is
// chunked, embedded and stored in badger so it can be searched by similarity.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dmitrijs2005/materialkeeper/internal/filex"
	"github.com/dmitrijs2005/materialkeeper/internal/logging"
)

const defaultEmbedBatch = 32

// IngestRequest is one source to (re)index.
type IngestRequest struct {
	Key
	Title    string
	Text     string
	MimeType string
}

// Hit is one search result.
type Hit struct {
	Key
	Title    string
	Position int
	Text     string
	Score    float32
}

type chunkRecord struct {
	Title    string    `json:"title"`
	Position int       `json:"position"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
}

type docRecord struct {
	Title     string    `json:"title"`
	MimeType  string    `json:"mimeType"`
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexedAt"`
}

// Options tunes chunking and embedding.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	EmbedBatch   int
}

// Index is a badger-backed vector index.
type Index struct {
	db         *badger.DB
	embedder   embeddings.Embedder
	chunker    Chunker
	embedBatch int
	log        logging.Logger
}

// NewEmbedder builds an OpenAI-compatible embedder.
func NewEmbedder(host, token, model string) (embeddings.Embedder, error) {
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
}

// Open opens the index at path, or in memory when path is empty.
func Open(path string, embedder embeddings.Embedder, opts Options, log logging.Logger) (*Index, error) {
	var bopts badger.Options
	if path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir, err := filex.EnsureDir(path)
		if err != nil {
			return nil, fmt.Errorf("index dir: %w", err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	log = log.With("module", "indexer")
	bopts.Logger = &badgerLogger{log: log}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	batch := opts.EmbedBatch
	if batch <= 0 {
		batch = defaultEmbedBatch
	}
	return &Index{
		db:         db,
		embedder:   embedder,
		chunker:    NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		embedBatch: batch,
		log:        log,
	}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// Ingest replaces everything stored for req.Key with freshly embedded chunks
// of req.Text and returns the number of chunks written.
func (ix *Index) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	chunks := ix.chunker.Split(req.Text)

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += ix.embedBatch {
		end := min(start+ix.embedBatch, len(chunks))
		vs, err := ix.embedder.EmbedDocuments(ctx, chunks[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vs) != end-start {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vs), end-start)
		}
		vectors = append(vectors, vs...)
	}

	if err := ix.DeleteByFilter(ctx, req.Key); err != nil {
		return 0, err
	}

	wb := ix.db.NewWriteBatch()
	defer wb.Cancel()

	for i, text := range chunks {
		val, err := json.Marshal(chunkRecord{Title: req.Title, Position: i, Text: text, Vector: vectors[i]})
		if err != nil {
			return 0, err
		}
		if err := wb.Set(req.Key.chunkKey(i), val); err != nil {
			return 0, fmt.Errorf("write chunk: %w", err)
		}
	}
	doc, err := json.Marshal(docRecord{Title: req.Title, MimeType: req.MimeType, Chunks: len(chunks), IndexedAt: time.Now().UTC()})
	if err != nil {
		return 0, err
	}
	if err := wb.Set(req.Key.docKey(), doc); err != nil {
		return 0, fmt.Errorf("write document: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush index: %w", err)
	}

	ix.log.Debug(ctx, "indexed source", "user_id", req.UserID, "kind", req.Kind, "source_id", req.SourceID, "chunks", len(chunks))
	return len(chunks), nil
}

// DeleteByFilter removes every chunk and the document record stored for key.
// Deleting a key that was never indexed is not an error.
func (ix *Index) DeleteByFilter(ctx context.Context, key Key) error {
	var keys [][]byte
	err := ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = key.chunkPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan index: %w", err)
	}
	keys = append(keys, key.docKey())

	wb := ix.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete index entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	return nil
}

// Search ranks the chunks owned by userID by cosine similarity to query.
func (ix *Index) Search(ctx context.Context, userID, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var hits []Hit
	err = ix.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userChunkPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec chunkRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			key, ok := parseChunkKey(item.Key())
			if !ok {
				continue
			}
			hits = append(hits, Hit{
				Key: key, Title: rec.Title, Position: rec.Position, Text: rec.Text,
				Score: cosine(qv, rec.Vector),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Chunks returns how many chunks are stored for key.
func (ix *Index) Chunks(key Key) (int, error) {
	var doc docRecord
	err := ix.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.docKey())
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &doc) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.Chunks, nil
}

func cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
