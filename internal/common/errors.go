// Package common defines sentinel errors and the coded error type shared by
// the repositories and the material pipeline. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// ErrStateConflict is returned when a conditional status transition
	// affected no rows because the row already left the expected state.
	ErrStateConflict = errors.New("state conflict")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// Validation errors.
	ErrorIncorrectMetadata = errors.New("incorrect metadata")
)
