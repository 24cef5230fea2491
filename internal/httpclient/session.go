package httpclient

import (
	"context"
	"io"
	"net/http"
)

// Session is a checked-out handle bound to one node of one service.
// It wraps the pool's shared *http.Client (which already keeps a
// persistent connection per host via its Transport) so callers get
// http_session.hxx's per-node affinity without reimplementing
// connection keep-alive on top of net/http.
type Session struct {
	pool     *Pool
	endpoint Endpoint
	client   *http.Client
	username string
	password string
	userAgent string
	// priority marks a session checked out of the analytics-priority
	// pool: every request it issues carries the "analytics-priority"
	// header, grounded on
	// original_source/ext/couchbase/operations/document_analytics.hxx's
	// encoded.headers["analytics-priority"] = "-1".
	priority bool
}

// Endpoint returns the node this session is bound to.
func (s *Session) Endpoint() Endpoint { return s.endpoint }

// Do issues method against path on this session's endpoint, with Basic
// auth and the pool's User-Agent applied, and returns the raw
// *http.Response for the caller to stream and close. Grounded on
// http_session.hxx's request/response contract; net/http's own
// transfer-encoding handling (chunked, content-length) stands in for
// the original's hand-rolled http_parser.hxx state machine, since the
// stdlib already implements that parser correctly and the framing
// codec (C2) is where this port's original-protocol work belongs.
func (s *Session) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return s.DoWithContentType(ctx, method, path, body, "")
}

// DoWithContentType behaves like Do but additionally sets the
// Content-Type header when contentType is non-empty, for operations
// whose body is not an implicit application/json payload.
func (s *Session) DoWithContentType(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint.url(path), body)
	if err != nil {
		return nil, err
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	req.Header.Set("User-Agent", s.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.priority {
		req.Header.Set("analytics-priority", "-1")
	}
	return s.client.Do(req)
}

// Release returns this session to its pool's idle list.
func (s *Session) Release() {
	s.pool.CheckIn(s)
}
