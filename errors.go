package meridian

import (
	"fmt"
	"time"

	"github.com/meridiandb/meridian-go/internal/errmap"
	"github.com/meridiandb/meridian-go/internal/httpclient"
	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/meridiandb/meridian-go/internal/wire"
)

// ErrorCode is the structured error-code enumeration spec.md §7 calls
// for: one closed vocabulary spanning common, key-value, query,
// analytics, search, view, and management failures. Grounded on the
// style of internal/database/postgres's DatabaseError in the teacher
// repo, adapted from Postgres SQLSTATE codes to this domain's
// taxonomy.
type ErrorCode string

const (
	ErrCommonTimeoutUnambiguous ErrorCode = "unambiguous_timeout"
	ErrCommonTimeoutAmbiguous   ErrorCode = "ambiguous_timeout"
	ErrCommonRequestCanceled    ErrorCode = "request_canceled"
	ErrCommonServiceNotAvailable ErrorCode = "service_not_available"
	ErrCommonBucketNotFound     ErrorCode = "bucket_not_found"
	ErrCommonAuthenticationFailure ErrorCode = "authentication_failure"
	ErrCommonInvalidArgument    ErrorCode = "invalid_argument"
	ErrCommonInternal           ErrorCode = "internal_error"

	ErrKVDocumentNotFound ErrorCode = "kv_document_not_found"
	ErrKVDocumentExists   ErrorCode = "kv_document_exists"
	ErrKVValueTooLarge    ErrorCode = "kv_value_too_large"
	ErrKVLocked           ErrorCode = "kv_locked"
	ErrKVTemporaryFailure ErrorCode = "kv_temporary_failure"
	ErrKVSyncWriteInProgress ErrorCode = "kv_sync_write_in_progress"
	ErrKVUnknownCollection ErrorCode = "kv_unknown_collection"
	ErrKVSubdocPathNotFound ErrorCode = "kv_subdoc_path_not_found"
	ErrKVSubdocPathMismatch ErrorCode = "kv_subdoc_path_mismatch"

	ErrQueryPreparedStatementFailure ErrorCode = "query_prepared_statement_failure"
	ErrQueryIndexNotFound            ErrorCode = "query_index_not_found"
	ErrQueryTimeout                  ErrorCode = "query_server_timeout"

	ErrAnalyticsTemporaryFailure ErrorCode = "analytics_temporary_failure"
	ErrSearchTooManyRequests     ErrorCode = "search_too_many_requests"
	ErrViewsTemporaryFailure     ErrorCode = "views_temporary_failure"
	ErrViewsNoActivePartition    ErrorCode = "views_no_active_partition"

	ErrManagementFailure ErrorCode = "management_failure"
)

// OperationContext is the per-operation context object spec.md §7
// names: {ec, opaque, last_dispatched_from, last_dispatched_to,
// status_code, error_map_info, server_duration, retry_attempts,
// retry_reasons}.
type OperationContext struct {
	Opaque             uint32
	LastDispatchedFrom string
	LastDispatchedTo   string
	StatusCode         wire.Status
	ErrorMapInfo       *errmap.ErrorInfo
	ServerDuration     time.Duration
	RetryAttempts      int
	RetryReasons       []retry.Reason
}

// OperationError is the error type every public Submit call returns on
// failure: a structured code plus the context that produced it.
type OperationError struct {
	Code    ErrorCode
	Message string
	Context OperationContext
	cause   error
}

func (e *OperationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("meridian: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("meridian: %s", e.Code)
}

func (e *OperationError) Unwrap() error { return e.cause }

// NewOperationError builds an OperationError for code with the given
// human-readable message.
func NewOperationError(code ErrorCode, message string) *OperationError {
	return &OperationError{Code: code, Message: message}
}

// WithCause attaches an underlying error (e.g. a network or decode
// failure) for errors.Unwrap/errors.Is chains.
func (e *OperationError) WithCause(cause error) *OperationError {
	e.cause = cause
	return e
}

// WithContext attaches the operation context diagnostics captured
// along the way.
func (e *OperationError) WithContext(ctx OperationContext) *OperationError {
	e.Context = ctx
	return e
}

// IsRetryableKV reports whether this error's code corresponds to one
// of the always-retry or retry-if-idempotent reasons in spec.md §4.7 —
// useful for a caller deciding whether to retry at a higher level after
// the orchestrator has already exhausted its own deadline.
func (e *OperationError) IsRetryableKV() bool {
	switch e.Code {
	case ErrKVLocked, ErrKVTemporaryFailure, ErrKVSyncWriteInProgress, ErrCommonServiceNotAvailable:
		return true
	default:
		return false
	}
}

// httpErrorCode maps an HTTP-side classification to the structured
// error code a caller sees once the retry orchestrator has decided to
// surface it, per spec.md §7's HTTP error-code rules: 4040-4090 and
// 12004/12016 identify a query-service failure, 23007 an analytics
// capacity failure, and the remaining reasons (search throttling,
// views temporary failure/partition unavailability) map directly.
func httpErrorCode(service httpclient.Service, cr httpclient.ClassifyResult) ErrorCode {
	switch cr.Reason {
	case retry.ReasonQueryPreparedStatementFailure:
		return ErrQueryPreparedStatementFailure
	case retry.ReasonQueryIndexNotFound:
		return ErrQueryIndexNotFound
	case retry.ReasonAnalyticsTemporaryFailure:
		return ErrAnalyticsTemporaryFailure
	case retry.ReasonSearchTooManyRequests:
		return ErrSearchTooManyRequests
	case retry.ReasonViewsTemporaryFailure:
		return ErrViewsTemporaryFailure
	case retry.ReasonViewsNoActivePartition:
		return ErrViewsNoActivePartition
	case retry.ReasonServiceNotAvailable, retry.ReasonNodeNotAvailable:
		return ErrCommonServiceNotAvailable
	}

	switch {
	case service == httpclient.ServiceQuery && cr.Code == 12003:
		return ErrCommonBucketNotFound
	case service == httpclient.ServiceQuery && cr.Code == 1080:
		return ErrQueryTimeout
	case (service == httpclient.ServiceAnalytics || service == httpclient.ServiceAnalyticsPriority) && cr.Code == 21002:
		return ErrCommonTimeoutUnambiguous
	case service == httpclient.ServiceManagement:
		return ErrManagementFailure
	default:
		return ErrCommonInternal
	}
}

// statusToErrorCode maps a raw wire status to the structured error
// code a caller sees, per spec.md §7's classification rules 2, 4, and 5
// (rule 1 success and rule 3 error-map reclassification are handled by
// the retry orchestrator before this mapping is consulted).
func statusToErrorCode(status wire.Status) ErrorCode {
	if wire.IsSubdocPathError(status) {
		switch status {
		case wire.StatusSubdocPathNotFound:
			return ErrKVSubdocPathNotFound
		case wire.StatusSubdocPathMismatch:
			return ErrKVSubdocPathMismatch
		default:
			return ErrKVSubdocPathMismatch
		}
	}

	switch status {
	case wire.StatusNotFound:
		return ErrKVDocumentNotFound
	case wire.StatusExists:
		return ErrKVDocumentExists
	case wire.StatusTooBig:
		return ErrKVValueTooLarge
	case wire.StatusLocked:
		return ErrKVLocked
	case wire.StatusTemporaryFailure:
		return ErrKVTemporaryFailure
	case wire.StatusSyncWriteInProgress, wire.StatusSyncWriteReCommitInProgress:
		return ErrKVSyncWriteInProgress
	case wire.StatusUnknownCollection:
		return ErrKVUnknownCollection
	case wire.StatusAuthError:
		return ErrCommonAuthenticationFailure
	case wire.StatusInvalid:
		return ErrCommonInvalidArgument
	default:
		return ErrCommonInternal
	}
}
