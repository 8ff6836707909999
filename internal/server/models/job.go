package models

import "time"

// ProcessingJob is the immutable payload of an asynchronous finalization.
// All mutable state lives in the UploadSession and Material rows.
type ProcessingJob struct {
	UserID   string `json:"userId"`
	UploadID string `json:"uploadId"`
	Title    string `json:"title,omitempty"`
	ETag     string `json:"etag,omitempty"`
}

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the pollable status record of a queued job.
type JobStatus struct {
	ID         string    `json:"id"`
	State      JobState  `json:"state"`
	Progress   int       `json:"progress"`
	Step       string    `json:"step,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	MaterialID string    `json:"materialId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
