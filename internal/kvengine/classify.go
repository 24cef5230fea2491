// Package kvengine implements the key-value session (spec component
// C3): the handshake state machine, opaque-keyed dispatch table,
// collection-id resolution, and not-my-partition reconfiguration that
// together drive one long-lived binary connection to one node.
//
// Grounded on the teacher's internal/core/resilience circuit-breaker
// and internal/realtime hub packages for the reactor-goroutine-plus-
// channel shape, and on original_source/ext/couchbase/io/mcbp_session.hxx
// (referenced structurally, not present verbatim in this pack) via the
// behavior spec.md §4.3 describes in its place.
package kvengine

import (
	"github.com/meridiandb/meridian-go/internal/errmap"
	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/meridiandb/meridian-go/internal/wire"
)

// Classify applies spec.md §7's five classification rules to a
// response, returning the Reason the retry orchestrator should use. A
// zero Reason (ReasonUnknown) means rule 1: a well-formed success,
// dispatch to the caller's decoder. Any other Reason is fed into
// retry.Orchestrator.Decide alongside the request's idempotence flag;
// rule 2's subdoc errors and rule 5's fallback both classify as
// ReasonDoNotRetry, which Decide always surfaces regardless of
// idempotence.
func Classify(status wire.Status, em *errmap.Map) retry.Reason {
	if status == wire.StatusSuccess {
		return retry.ReasonUnknown
	}

	// Rule 2: known subdocument path errors surface immediately, ahead
	// of error-map reclassification.
	if wire.IsSubdocPathError(status) {
		return retry.ReasonDoNotRetry
	}

	// Rule 4: specific statuses reclassify directly per §4.7's table.
	switch status {
	case wire.StatusLocked:
		return retry.ReasonKVLocked
	case wire.StatusTemporaryFailure:
		return retry.ReasonKVTemporaryFailure
	case wire.StatusSyncWriteInProgress:
		return retry.ReasonKVSyncWriteInProgress
	case wire.StatusSyncWriteReCommitInProgress:
		return retry.ReasonKVSyncWriteReCommitInProgress
	case wire.StatusNotMyVBucket:
		return retry.ReasonKVNotMyVBucket
	case wire.StatusUnknownCollection:
		return retry.ReasonKVCollectionOutdated
	}

	// Rule 3: error-map attribute reclassification.
	if info, ok := em.Lookup(uint16(status)); ok && info.HasRetryAttribute() {
		return retry.ReasonKVErrorMapRetryIndicated
	}

	// Rule 5: surface with the symbolic error (caller maps status to an
	// ErrorCode; this function only owns retry classification).
	return retry.ReasonDoNotRetry
}
