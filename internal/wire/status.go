package wire

import "fmt"

// Status is the 16-bit server response status. The closed set is
// grounded on original_source/ext/couchbase/protocol/status.hxx.
type Status uint16

const (
	StatusSuccess      Status = 0x00
	StatusNotFound     Status = 0x01
	StatusExists       Status = 0x02
	StatusTooBig       Status = 0x03
	StatusInvalid      Status = 0x04
	StatusNotStored    Status = 0x05
	StatusDeltaBadValue Status = 0x06
	StatusNotMyVBucket Status = 0x07
	StatusNoBucket     Status = 0x08
	StatusLocked       Status = 0x09

	StatusAuthStale    Status = 0x1f
	StatusAuthError    Status = 0x20
	StatusAuthContinue Status = 0x21
	StatusRangeError   Status = 0x22
	StatusRollback     Status = 0x23
	StatusNoAccess     Status = 0x24
	StatusNotInitialized Status = 0x25

	StatusUnknownFrameInfo Status = 0x80
	StatusUnknownCommand   Status = 0x81
	StatusNoMemory         Status = 0x82
	StatusNotSupported     Status = 0x83
	StatusInternal         Status = 0x84
	StatusBusy             Status = 0x85
	StatusTemporaryFailure Status = 0x86
	StatusXattrInvalid     Status = 0x87
	StatusUnknownCollection Status = 0x88
	StatusNoCollectionsManifest Status = 0x89
	StatusCannotApplyCollectionsManifest Status = 0x8a
	StatusCollectionsManifestIsAhead      Status = 0x8b
	StatusUnknownScope                   Status = 0x8c

	StatusDurabilityInvalidLevel          Status = 0xa0
	StatusDurabilityImpossible            Status = 0xa1
	StatusSyncWriteInProgress             Status = 0xa2
	StatusSyncWriteAmbiguous              Status = 0xa3
	StatusSyncWriteReCommitInProgress     Status = 0xa4

	StatusSubdocPathNotFound     Status = 0xc0
	StatusSubdocPathMismatch     Status = 0xc1
	StatusSubdocPathInvalid      Status = 0xc2
	StatusSubdocPathTooBig       Status = 0xc3
	StatusSubdocDocTooDeep       Status = 0xc4
	StatusSubdocValueCannotInsert Status = 0xc5
	StatusSubdocDocNotJSON       Status = 0xc6
	StatusSubdocNumRangeError    Status = 0xc7
	StatusSubdocDeltaInvalid     Status = 0xc8
	StatusSubdocPathExists       Status = 0xc9
	StatusSubdocValueTooDeep     Status = 0xca
	StatusSubdocInvalidCombo     Status = 0xcb
	StatusSubdocMultiPathFailure Status = 0xcc
	StatusSubdocSuccessDeleted   Status = 0xcd
	StatusSubdocInvalidXattrOrder Status = 0xd4
)

// IsSubdocPathError reports whether s is one of the subdocument path
// error statuses that spec.md §7 rule 2 says must "surface immediately
// (caller handles)" ahead of any error-map or reclassification logic.
func IsSubdocPathError(s Status) bool {
	return s >= StatusSubdocPathNotFound && s <= StatusSubdocInvalidXattrOrder
}

var statusNames = map[Status]string{
	StatusSuccess:       "success",
	StatusNotFound:      "not_found",
	StatusExists:        "exists",
	StatusTooBig:        "too_big",
	StatusInvalid:       "invalid",
	StatusNotStored:     "not_stored",
	StatusDeltaBadValue: "delta_bad_value",
	StatusNotMyVBucket:  "not_my_vbucket",
	StatusNoBucket:      "no_bucket",
	StatusLocked:        "locked",

	StatusAuthStale:      "auth_stale",
	StatusAuthError:      "auth_error",
	StatusAuthContinue:   "auth_continue",
	StatusRangeError:     "range_error",
	StatusRollback:       "rollback",
	StatusNoAccess:       "no_access",
	StatusNotInitialized: "not_initialized",

	StatusUnknownFrameInfo:                "unknown_frame_info",
	StatusUnknownCommand:                  "unknown_command",
	StatusNoMemory:                        "no_memory",
	StatusNotSupported:                    "not_supported",
	StatusInternal:                        "internal",
	StatusBusy:                            "busy",
	StatusTemporaryFailure:                "temporary_failure",
	StatusXattrInvalid:                    "xattr_invalid",
	StatusUnknownCollection:                "unknown_collection",
	StatusNoCollectionsManifest:            "no_collections_manifest",
	StatusCannotApplyCollectionsManifest:   "cannot_apply_collections_manifest",
	StatusCollectionsManifestIsAhead:       "collections_manifest_is_ahead",
	StatusUnknownScope:                     "unknown_scope",

	StatusDurabilityInvalidLevel:      "durability_invalid_level",
	StatusDurabilityImpossible:        "durability_impossible",
	StatusSyncWriteInProgress:         "sync_write_in_progress",
	StatusSyncWriteAmbiguous:          "sync_write_ambiguous",
	StatusSyncWriteReCommitInProgress: "sync_write_recommit_in_progress",

	StatusSubdocPathNotFound:      "subdoc_path_not_found",
	StatusSubdocPathMismatch:      "subdoc_path_mismatch",
	StatusSubdocPathInvalid:       "subdoc_path_invalid",
	StatusSubdocPathTooBig:        "subdoc_path_too_big",
	StatusSubdocDocTooDeep:        "subdoc_doc_too_deep",
	StatusSubdocValueCannotInsert: "subdoc_value_cannot_insert",
	StatusSubdocDocNotJSON:        "subdoc_doc_not_json",
	StatusSubdocNumRangeError:     "subdoc_num_range_error",
	StatusSubdocDeltaInvalid:      "subdoc_delta_invalid",
	StatusSubdocPathExists:        "subdoc_path_exists",
	StatusSubdocValueTooDeep:      "subdoc_value_too_deep",
	StatusSubdocInvalidCombo:      "subdoc_invalid_combo",
	StatusSubdocMultiPathFailure:  "subdoc_multi_path_failure",
	StatusSubdocSuccessDeleted:    "subdoc_success_deleted",
	StatusSubdocInvalidXattrOrder: "subdoc_invalid_xattr_order",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint16(s))
}
