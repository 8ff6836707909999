// Package storage holds the types shared by the object storage adapters.
package storage

import (
	"errors"
	"strings"
)

// ErrObjectNotFound is returned by adapters when the requested key does not
// exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is the subset of object metadata used to verify an upload.
// Size is nil when the backend did not report a length.
type ObjectInfo struct {
	Size        *int64
	ContentType string
	ETag        string
}

// NormalizeETag trims whitespace and surrounding quotes from an ETag.
func NormalizeETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}
