package wire

// Opcode identifies the operation a binary-protocol frame carries. The
// closed set below is grounded on original_source/ext/couchbase/protocol/
// client_opcode.hxx — spec.md §6 requires new codes to be refused via
// IsValidOpcode rather than silently accepted.
type Opcode byte

const (
	OpGet       Opcode = 0x00
	OpUpsert    Opcode = 0x01
	OpInsert    Opcode = 0x02
	OpReplace   Opcode = 0x03
	OpDelete    Opcode = 0x04
	OpIncrement Opcode = 0x05
	OpDecrement Opcode = 0x06
	OpNoop      Opcode = 0x0a
	OpVersion   Opcode = 0x0b
	OpAppend    Opcode = 0x0e
	OpPrepend   Opcode = 0x0f
	OpStat      Opcode = 0x10
	OpTouch     Opcode = 0x1c
	OpGetAndTouch Opcode = 0x1d
	OpHello       Opcode = 0x1f
	OpSASLListMechs Opcode = 0x20
	OpSASLAuth      Opcode = 0x21
	OpSASLStep      Opcode = 0x22

	OpSelectBucket Opcode = 0x89
	OpObserveSeqno Opcode = 0x91
	OpObserve      Opcode = 0x92
	OpExists       Opcode = 0xc6

	OpSetCollectionsManifest Opcode = 0xb9
	OpGetCollectionsManifest Opcode = 0xba
	OpGetCollectionID        Opcode = 0xbb

	OpSubdocMultiLookup   Opcode = 0xd0
	OpSubdocMultiMutation Opcode = 0xd1

	OpGetClusterConfig Opcode = 0xb5
	OpGetErrorMap      Opcode = 0xfe
)

// idempotent is the read-only opcode set spec.md §4.7 names: "get,
// lookup_in, observe, ...". A request is idempotent if the caller flagged
// it so OR its opcode is in this set.
var idempotent = map[Opcode]bool{
	OpGet:            true,
	OpGetAndTouch:    true,
	OpObserve:        true,
	OpObserveSeqno:   true,
	OpExists:         true,
	OpStat:           true,
	OpSubdocMultiLookup: true,
	OpGetCollectionID:   true,
	OpGetClusterConfig:  true,
	OpGetErrorMap:       true,
	OpNoop:              true,
	OpVersion:           true,
}

// IsIdempotent reports whether op is in the read-only set.
func IsIdempotent(op Opcode) bool { return idempotent[op] }

// valid is the closed set of opcodes this core ever emits or expects to
// receive. is_valid_opcode in the original refuses anything outside it.
var valid = func() map[Opcode]bool {
	m := map[Opcode]bool{}
	for op := range idempotent {
		m[op] = true
	}
	for _, op := range []Opcode{
		OpUpsert, OpInsert, OpReplace, OpDelete, OpIncrement, OpDecrement,
		OpAppend, OpPrepend, OpTouch, OpHello, OpSASLListMechs, OpSASLAuth,
		OpSASLStep, OpSelectBucket, OpSetCollectionsManifest,
		OpGetCollectionsManifest, OpSubdocMultiMutation,
	} {
		m[op] = true
	}
	return m
}()

// IsValidOpcode reports whether op is a recognized member of the closed
// set this core speaks. Unknown opcodes on the wire are refused rather
// than silently forwarded, per spec.md §6.
func IsValidOpcode(op Opcode) bool { return valid[op] }

func (op Opcode) String() string {
	switch op {
	case OpGet:
		return "get"
	case OpUpsert:
		return "upsert"
	case OpInsert:
		return "insert"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	case OpNoop:
		return "noop"
	case OpVersion:
		return "version"
	case OpAppend:
		return "append"
	case OpPrepend:
		return "prepend"
	case OpStat:
		return "stat"
	case OpTouch:
		return "touch"
	case OpGetAndTouch:
		return "get_and_touch"
	case OpHello:
		return "hello"
	case OpSASLListMechs:
		return "sasl_list_mechs"
	case OpSASLAuth:
		return "sasl_auth"
	case OpSASLStep:
		return "sasl_step"
	case OpSelectBucket:
		return "select_bucket"
	case OpObserveSeqno:
		return "observe_seqno"
	case OpObserve:
		return "observe"
	case OpExists:
		return "exists"
	case OpSetCollectionsManifest:
		return "set_collections_manifest"
	case OpGetCollectionsManifest:
		return "get_collections_manifest"
	case OpGetCollectionID:
		return "get_collection_id"
	case OpSubdocMultiLookup:
		return "subdoc_multi_lookup"
	case OpSubdocMultiMutation:
		return "subdoc_multi_mutation"
	case OpGetClusterConfig:
		return "get_cluster_config"
	case OpGetErrorMap:
		return "get_error_map"
	default:
		return "unknown"
	}
}
