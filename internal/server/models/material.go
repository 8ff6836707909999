// Package models defines server-side data models persisted in the database.
package models

import "time"

// MaterialStatus is the processing state of a Material.
type MaterialStatus string

const (
	MaterialPending    MaterialStatus = "PENDING"
	MaterialProcessing MaterialStatus = "PROCESSING"
	MaterialReady      MaterialStatus = "READY"
	MaterialFailed     MaterialStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s MaterialStatus) Terminal() bool {
	return s == MaterialReady || s == MaterialFailed
}

// Material is the durable record of an ingested document. The bytes live in
// object storage under StorageKey.
type Material struct {
	ID               string
	UserID           string
	Title            string
	OriginalFilename string
	StorageKey       string
	MimeType         string
	FileSize         int64

	// Checksum is the hex SHA-256 of the content; unique per user among
	// non-deleted materials.
	Checksum string

	Status       MaterialStatus
	Progress     int
	Step         string
	ErrorMessage string
	Summary      string

	DeletedAt   *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutlineNode is one entry of a material's generated outline. ParentID is
// empty for top-level nodes.
type OutlineNode struct {
	ID         string
	MaterialID string
	ParentID   string
	Position   int
	Depth      int
	Title      string
	Summary    string
}
