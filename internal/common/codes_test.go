package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesOnCode(t *testing.T) {
	err := NewError(CodeUploadExpired, "upload session expired")
	wrapped := fmt.Errorf("finalize: %w", err)

	assert.True(t, errors.Is(wrapped, NewError(CodeUploadExpired, "")))
	assert.False(t, errors.Is(wrapped, NewError(CodeUploadNotFound, "")))
}

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(CodeUnknown, "copy object", cause)

	assert.Equal(t, "UNKNOWN: copy object: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeMaterialDuplicate, CodeOf(fmt.Errorf("x: %w", NewError(CodeMaterialDuplicate, "dup"))))
	assert.True(t, HasCode(NewError(CodeInternal, "x"), CodeInternal))
}

func TestAsCoded(t *testing.T) {
	assert.Nil(t, AsCoded(nil))

	coded := NewError(CodeUploadSizeMismatch, "size")
	assert.Same(t, coded, AsCoded(fmt.Errorf("wrap: %w", coded)))

	plain := errors.New("boom")
	got := AsCoded(plain)
	require.NotNil(t, got)
	assert.Equal(t, CodeUnknown, got.Code)
	assert.ErrorIs(t, got, plain)
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	base := NewError(CodeMaterialDuplicate, "duplicate")
	withID := base.WithDetail("materialId", "m1")

	assert.Nil(t, base.Details)
	assert.Equal(t, "m1", withID.Details["materialId"])
	assert.Equal(t, base.Code, withID.Code)
}
