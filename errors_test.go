package meridian

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridiandb/meridian-go/internal/wire"
)

func TestOperationError_ErrorString(t *testing.T) {
	withMsg := NewOperationError(ErrKVLocked, "document is locked")
	assert.Equal(t, "meridian: kv_locked: document is locked", withMsg.Error())

	withoutMsg := NewOperationError(ErrKVDocumentNotFound, "")
	assert.Equal(t, "meridian: kv_document_not_found", withoutMsg.Error())
}

func TestOperationError_WithCauseUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	opErr := NewOperationError(ErrCommonInternal, "dispatch failed").WithCause(cause)

	assert.ErrorIs(t, opErr, cause)
	assert.Same(t, cause, opErr.Unwrap())
}

func TestOperationError_WithContext(t *testing.T) {
	ctx := OperationContext{Opaque: 7, RetryAttempts: 2}
	opErr := NewOperationError(ErrKVTemporaryFailure, "retries exhausted").WithContext(ctx)

	assert.Equal(t, uint32(7), opErr.Context.Opaque)
	assert.Equal(t, 2, opErr.Context.RetryAttempts)
}

func TestOperationError_IsRetryableKV(t *testing.T) {
	cases := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrKVLocked, true},
		{ErrKVTemporaryFailure, true},
		{ErrKVSyncWriteInProgress, true},
		{ErrCommonServiceNotAvailable, true},
		{ErrKVDocumentNotFound, false},
		{ErrCommonInternal, false},
	}
	for _, tc := range cases {
		e := NewOperationError(tc.code, "")
		assert.Equal(t, tc.retryable, e.IsRetryableKV(), "code=%s", tc.code)
	}
}

func TestStatusToErrorCode(t *testing.T) {
	cases := []struct {
		status wire.Status
		code   ErrorCode
	}{
		{wire.StatusNotFound, ErrKVDocumentNotFound},
		{wire.StatusExists, ErrKVDocumentExists},
		{wire.StatusTooBig, ErrKVValueTooLarge},
		{wire.StatusLocked, ErrKVLocked},
		{wire.StatusTemporaryFailure, ErrKVTemporaryFailure},
		{wire.StatusSyncWriteInProgress, ErrKVSyncWriteInProgress},
		{wire.StatusSyncWriteReCommitInProgress, ErrKVSyncWriteInProgress},
		{wire.StatusUnknownCollection, ErrKVUnknownCollection},
		{wire.StatusAuthError, ErrCommonAuthenticationFailure},
		{wire.StatusInvalid, ErrCommonInvalidArgument},
		{wire.StatusSubdocPathNotFound, ErrKVSubdocPathNotFound},
		{wire.StatusSubdocPathMismatch, ErrKVSubdocPathMismatch},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, statusToErrorCode(tc.status), "status=%v", tc.status)
	}
}
