// Package pipeline finalizes uploads into materials. One invocation verifies
// the uploaded object, rejects duplicate content, moves the object to its
// permanent key, extracts and analyzes the text, indexes it and persists the
// result. Any failure after the session is loaded is undone best-effort.
package pipeline

import (
	"context"
	"time"

	"github.com/dmitrijs2005/materialkeeper/internal/server/analyzer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/indexer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/parser"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

// ObjectStore is implemented by s3store.Store and miniostore.Store.
type ObjectStore interface {
	HeadObject(ctx context.Context, key string) (*storage.ObjectInfo, error)
	GetObjectBytes(ctx context.Context, key string) ([]byte, error)
	CopyObject(ctx context.Context, src, dst, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	CreatePresignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

type DocumentParser interface {
	IsSupportedMaterialFile(mimeType, filename string) bool
	ParseFileBytesSource(ctx context.Context, content []byte, mimeType, filename string, size int64) (*parser.Document, error)
}

type ContentAnalyzer interface {
	Analyze(ctx context.Context, materialID, fullText, mimeType string) (*analyzer.Analysis, error)
}

type KnowledgeIndexer interface {
	Ingest(ctx context.Context, req indexer.IngestRequest) (int, error)
	DeleteByFilter(ctx context.Context, key indexer.Key) error
}

// Ports groups the external collaborators of the pipeline.
type Ports struct {
	Store    ObjectStore
	Parser   DocumentParser
	Analyzer ContentAnalyzer
	Index    KnowledgeIndexer
}

// Step is a progress stage label.
type Step string

const (
	StepPreparing  Step = "PREPARING"
	StepVerifying  Step = "VERIFYING"
	StepLoading    Step = "LOADING"
	StepChecking   Step = "CHECKING"
	StepStoring    Step = "STORING"
	StepAnalyzing  Step = "ANALYZING"
	StepFinalizing Step = "FINALIZING"
	StepCompleted  Step = "COMPLETED"
	StepFailed     Step = "FAILED"
)

// ProgressFunc receives progress notifications. Its errors are logged and
// otherwise ignored.
type ProgressFunc func(ctx context.Context, step Step, percent int, message string) error

// FinalizeRequest identifies the upload to finalize. Title and ETag are
// optional.
type FinalizeRequest struct {
	UserID   string
	UploadID string
	Title    string
	ETag     string
}

// MaterialSummary is the result of a successful run.
type MaterialSummary struct {
	Mode       string `json:"mode"`
	MaterialID string `json:"materialId"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Summary    string `json:"summary"`
}
