// Package retry implements the retry orchestrator (spec component C7):
// for every dispatch failure it classifies a Reason against the caller's
// idempotence flag and decides between retrying (with backoff), remapping
// and retrying, or surfacing the error. It is grounded on the teacher's
// internal/core/resilience package — same exponential-backoff-with-jitter
// shape, same RetryableErrorChecker-style pluggability — but reworked from
// a self-contained retry loop into a decision engine (Decide, NextDelay,
// Throttle) that the bucket and cluster retry loops call, plus Schedule,
// a one-shot timer that fires a callback on its own goroutine.
package retry

// Reason is the classification attached to a failed dispatch. The full
// vocabulary mirrors io/retry_reason.hxx in original_source, which is
// richer than the subset spec.md §4.7 lists in its table.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonDoNotRetry

	// Always-retry reasons (the first two remap first; see Remaps).
	ReasonKVNotMyVBucket
	ReasonKVCollectionOutdated
	ReasonViewsNoActivePartition

	// Retry-if-idempotent reasons.
	ReasonServiceNotAvailable
	ReasonNodeNotAvailable
	ReasonSocketNotAvailable
	ReasonKVErrorMapRetryIndicated
	ReasonKVLocked
	ReasonKVTemporaryFailure
	ReasonKVSyncWriteInProgress
	ReasonKVSyncWriteReCommitInProgress
	ReasonServiceResponseCodeIndicated
	ReasonCircuitBreakerOpen
	ReasonQueryPreparedStatementFailure
	ReasonQueryIndexNotFound
	ReasonAnalyticsTemporaryFailure
	ReasonSearchTooManyRequests
	ReasonViewsTemporaryFailure

	// Always-surface reasons.
	ReasonSocketClosedWhileInFlight
)

// alwaysRetry is the set of reasons that retry regardless of idempotence,
// after the caller has had a chance to remap the operation to a new node.
var alwaysRetry = map[Reason]bool{
	ReasonKVNotMyVBucket:         true,
	ReasonKVCollectionOutdated:   true,
	ReasonViewsNoActivePartition: true,
}

// retryIfIdempotent is the set of reasons that only retry for operations
// the caller (or the opcode table) has marked idempotent.
var retryIfIdempotent = map[Reason]bool{
	ReasonServiceNotAvailable:           true,
	ReasonNodeNotAvailable:              true,
	ReasonSocketNotAvailable:            true,
	ReasonKVErrorMapRetryIndicated:      true,
	ReasonKVLocked:                      true,
	ReasonKVTemporaryFailure:            true,
	ReasonKVSyncWriteInProgress:         true,
	ReasonKVSyncWriteReCommitInProgress: true,
	ReasonServiceResponseCodeIndicated:  true,
	ReasonCircuitBreakerOpen:            true,
	ReasonQueryPreparedStatementFailure: true,
	ReasonQueryIndexNotFound:            true,
	ReasonAnalyticsTemporaryFailure:     true,
	ReasonSearchTooManyRequests:         true,
	ReasonViewsTemporaryFailure:         true,
}

// Remaps reports whether a retry for this reason requires fetching a fresh
// cluster configuration and recomputing the target node/session before the
// retry is dispatched.
func (r Reason) Remaps() bool {
	return r == ReasonKVNotMyVBucket || r == ReasonKVCollectionOutdated
}

func (r Reason) String() string {
	switch r {
	case ReasonDoNotRetry:
		return "do_not_retry"
	case ReasonKVNotMyVBucket:
		return "kv_not_my_vbucket"
	case ReasonKVCollectionOutdated:
		return "kv_collection_outdated"
	case ReasonViewsNoActivePartition:
		return "views_no_active_partition"
	case ReasonServiceNotAvailable:
		return "service_not_available"
	case ReasonNodeNotAvailable:
		return "node_not_available"
	case ReasonSocketNotAvailable:
		return "socket_not_available"
	case ReasonKVErrorMapRetryIndicated:
		return "kv_error_map_retry_indicated"
	case ReasonKVLocked:
		return "kv_locked"
	case ReasonKVTemporaryFailure:
		return "kv_temporary_failure"
	case ReasonKVSyncWriteInProgress:
		return "kv_sync_write_in_progress"
	case ReasonKVSyncWriteReCommitInProgress:
		return "kv_sync_write_re_commit_in_progress"
	case ReasonServiceResponseCodeIndicated:
		return "service_response_code_indicated"
	case ReasonCircuitBreakerOpen:
		return "circuit_breaker_open"
	case ReasonQueryPreparedStatementFailure:
		return "query_prepared_statement_failure"
	case ReasonQueryIndexNotFound:
		return "query_index_not_found"
	case ReasonAnalyticsTemporaryFailure:
		return "analytics_temporary_failure"
	case ReasonSearchTooManyRequests:
		return "search_too_many_requests"
	case ReasonViewsTemporaryFailure:
		return "views_temporary_failure"
	case ReasonSocketClosedWhileInFlight:
		return "socket_closed_while_in_flight"
	default:
		return "unknown"
	}
}
