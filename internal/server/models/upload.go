package models

import "time"

// UploadStatus is the lifecycle state of an UploadSession.
type UploadStatus string

const (
	UploadInitiated UploadStatus = "INITIATED"
	UploadCompleted UploadStatus = "COMPLETED"
	UploadExpired   UploadStatus = "EXPIRED"
	UploadFailed    UploadStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadExpired || s == UploadFailed
}

// UploadSession is a short-lived ticket for a pending upload. The client
// PUTs the bytes to TempKey using a presigned URL; finalization moves them
// to FinalKey and links the resulting material.
type UploadSession struct {
	ID     string
	UserID string
	Status UploadStatus

	// TempKey is where the client uploaded the object.
	TempKey string
	// FinalKey is set only when the session completes.
	FinalKey string

	// Declared by the client when the upload was initiated.
	MimeType         string
	FileSize         int64
	OriginalFilename string

	ExpiresAt   time.Time
	CompletedAt *time.Time

	// ETag observed on the stored object at completion.
	ETag string
	// MaterialID links the session to the material it produced or will produce.
	MaterialID string

	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the session can no longer be finalized at now.
func (u *UploadSession) Expired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}
