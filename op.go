package meridian

import (
	"context"
	"net/http"

	"github.com/meridiandb/meridian-go/internal/wire"
)

// ServiceTag names the target service category for Submit's strongly
// typed dispatch (spec.md §4.6): key-value-like requests route
// through a Bucket, everything else checks out an HTTP session.
type ServiceTag int

const (
	ServiceKeyValue ServiceTag = iota
	ServiceQuery
	ServiceAnalytics
	ServiceAnalyticsPriority
	ServiceSearch
	ServiceViews
	ServiceManagement
)

// Op is the external-collaborator contract spec.md §1 requires of
// every request/response type: "the core only requires that each type
// expose an encode(context) -> bytes and decode(bytes) -> value pair
// and a target service tag." Meridian never constructs payloads for
// "upsert", "query", etc. itself — callers implement Op (or embed one
// of KVOp/HTTPOp below) for each request shape their application
// needs.
type Op interface {
	Service() ServiceTag
	Idempotent() bool
}

// KVOp is the codec contract for a key-value-like operation routed
// through a Bucket (C5) and Session (C3).
type KVOp interface {
	Op

	Opcode() wire.Opcode
	BucketName() string
	// CollectionPath returns "scope.collection", or "" to address the
	// default collection.
	CollectionPath() string
	Key() []byte

	// Encode produces the extras and value sections once collectionID
	// has been resolved (0 for the default collection on a
	// collections-unaware request).
	Encode(ctx context.Context, collectionID uint32) (extras, value []byte, datatype byte, err error)

	// Decode parses a successful response frame's extras/value into
	// the op's own result fields.
	Decode(frame *wire.Frame) error
}

// HTTPOp is the codec contract for a request routed through the HTTP
// session pool (C4).
type HTTPOp interface {
	Op

	Method() string
	Path() string
	Body() ([]byte, error)
	ContentType() string
	DecodeResponse(resp *http.Response) error
}

func (t ServiceTag) httpService() (string, bool) {
	switch t {
	case ServiceQuery:
		return "query", true
	case ServiceAnalytics:
		return "analytics", true
	case ServiceAnalyticsPriority:
		return "analytics_priority", true
	case ServiceSearch:
		return "search", true
	case ServiceViews:
		return "views", true
	case ServiceManagement:
		return "management", true
	default:
		return "", false
	}
}
