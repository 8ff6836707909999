package common

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, machine-readable failure identifier surfaced to the
// callers of the material pipeline.
type ErrorCode string

const (
	CodeUploadNotFound            ErrorCode = "UPLOAD_NOT_FOUND"
	CodeUploadAlreadyCompleted    ErrorCode = "UPLOAD_ALREADY_COMPLETED"
	CodeUploadExpired             ErrorCode = "UPLOAD_EXPIRED"
	CodeUploadInvalidState        ErrorCode = "UPLOAD_INVALID_STATE"
	CodeUploadObjectNotFound      ErrorCode = "UPLOAD_OBJECT_NOT_FOUND"
	CodeUploadSizeMismatch        ErrorCode = "UPLOAD_SIZE_MISMATCH"
	CodeUploadContentTypeMismatch ErrorCode = "UPLOAD_CONTENT_TYPE_MISMATCH"
	CodeUploadETagMismatch        ErrorCode = "UPLOAD_ETAG_MISMATCH"
	CodeMaterialDuplicate         ErrorCode = "MATERIAL_DUPLICATE"
	CodeMaterialUnsupportedType   ErrorCode = "MATERIAL_UNSUPPORTED_TYPE"
	CodeMaterialParseFailed       ErrorCode = "MATERIAL_PARSE_FAILED"
	CodeMaterialMetadataInvalid   ErrorCode = "MATERIAL_METADATA_INVALID"
	CodeInternal                  ErrorCode = "INTERNAL"
	CodeUnknown                   ErrorCode = "UNKNOWN"
)

// Error is a coded failure with a human-readable message, optional structured
// details and an optional underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// NewError returns an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError returns an Error with the given code that carries cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// WithDetail returns a copy of e with key set to value in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	c := *e
	c.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		c.Details[k] = v
	}
	c.Details[key] = value
	return &c
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, common.NewError(code, "")) matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the code from err. Errors that carry no code report
// CodeUnknown; a nil error reports an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// AsCoded returns err unchanged if it already carries a code and otherwise
// wraps it as CodeUnknown.
func AsCoded(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return WrapError(CodeUnknown, "unexpected failure", err)
}
