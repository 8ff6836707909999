package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

// sizeTolerance is the allowed relative deviation of the stored object size
// from the declared size.
const sizeTolerance = 0.01

// Declared is the metadata the client announced for an upload.
type Declared struct {
	MimeType string
	Size     int64
	// ETag is optional.
	ETag string
}

// Verify compares the metadata reported by the store with the declared one.
// Content type is checked first, then size, then the entity tag.
func Verify(observed *storage.ObjectInfo, declared Declared) error {
	if observed == nil {
		return common.NewError(common.CodeUploadInvalidState, "object metadata is unavailable")
	}

	if got, want := baseContentType(observed.ContentType), baseContentType(declared.MimeType); got != want {
		return common.NewError(common.CodeUploadContentTypeMismatch,
			fmt.Sprintf("stored content type %q does not match declared %q", got, want)).
			WithDetail("observed", got).
			WithDetail("declared", want)
	}

	if observed.Size == nil {
		return common.NewError(common.CodeUploadInvalidState, "stored object size is unknown")
	}
	tolerance := float64(declared.Size) * sizeTolerance
	if math.Abs(float64(*observed.Size-declared.Size)) > tolerance {
		return common.NewError(common.CodeUploadSizeMismatch,
			fmt.Sprintf("stored size %d differs from declared %d", *observed.Size, declared.Size)).
			WithDetail("observed", *observed.Size).
			WithDetail("declared", declared.Size)
	}

	if declared.ETag != "" && observed.ETag != "" {
		got, want := storage.NormalizeETag(observed.ETag), storage.NormalizeETag(declared.ETag)
		if got != want {
			return common.NewError(common.CodeUploadETagMismatch, "stored entity tag does not match").
				WithDetail("observed", got).
				WithDetail("declared", want)
		}
	}
	return nil
}

// headUpload fetches the metadata of key, remapping a missing object.
func headUpload(ctx context.Context, store ObjectStore, key string) (*storage.ObjectInfo, error) {
	info, err := store.HeadObject(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, common.WrapError(common.CodeUploadObjectNotFound, "uploaded object not found", err).
			WithDetail("key", key)
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// baseContentType lower-cases a MIME type and drops its parameters.
func baseContentType(v string) string {
	v = strings.ToLower(v)
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
