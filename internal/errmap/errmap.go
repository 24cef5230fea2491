// Package errmap decodes the server-published error map (spec.md §3's
// "Error map" data model, fetched once at handshake per §4.3) and
// exposes the attribute-set lookup the retry classifier in §4.7 needs.
// Grounded on original_source/ext/couchbase/error_map.hxx, re-expressed
// with encoding/json (the wire form is plain JSON) instead of a
// tao::json traits specialization, and github.com/google/uuid in place
// of the original's ad hoc uuid_t for the map's identity field.
package errmap

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Attribute is one member of the closed vocabulary the server can tag
// a status code with.
type Attribute string

const (
	AttrSuccess               Attribute = "success"
	AttrItemOnly              Attribute = "item-only"
	AttrInvalidInput          Attribute = "invalid-input"
	AttrFetchConfig           Attribute = "fetch-config"
	AttrConnStateInvalidated  Attribute = "conn-state-invalidated"
	AttrAuth                  Attribute = "auth"
	AttrSpecialHandling       Attribute = "special-handling"
	AttrSupport               Attribute = "support"
	AttrTemp                  Attribute = "temp"
	AttrInternal              Attribute = "internal"
	AttrRetryNow              Attribute = "retry-now"
	AttrRetryLater            Attribute = "retry-later"
	AttrSubdoc                Attribute = "subdoc"
	AttrDCP                   Attribute = "dcp"
	AttrAutoRetry             Attribute = "auto-retry"
	AttrItemLocked            Attribute = "item-locked"
	AttrItemDeleted           Attribute = "item-deleted"
)

var knownAttributes = map[Attribute]bool{
	AttrSuccess: true, AttrItemOnly: true, AttrInvalidInput: true, AttrFetchConfig: true,
	AttrConnStateInvalidated: true, AttrAuth: true, AttrSpecialHandling: true, AttrSupport: true,
	AttrTemp: true, AttrInternal: true, AttrRetryNow: true, AttrRetryLater: true,
	AttrSubdoc: true, AttrDCP: true, AttrAutoRetry: true, AttrItemLocked: true, AttrItemDeleted: true,
}

// ErrorInfo is the decoded entry for one 16-bit status code.
type ErrorInfo struct {
	Code        uint16
	Name        string
	Description string
	Attributes  map[Attribute]bool
}

// HasRetryAttribute reports whether this status should be reclassified
// as kv_error_map_retry_indicated per spec.md §4.7 rule 3.
func (e ErrorInfo) HasRetryAttribute() bool {
	return e.Attributes[AttrRetryNow] || e.Attributes[AttrRetryLater]
}

// Map is a decoded error map, keyed by status code.
type Map struct {
	ID       uuid.UUID
	Version  uint16
	Revision uint16
	Errors   map[uint16]ErrorInfo
}

// Lookup returns the entry for code, if the map declares one.
func (m *Map) Lookup(code uint16) (ErrorInfo, bool) {
	if m == nil {
		return ErrorInfo{}, false
	}
	e, ok := m.Errors[code]
	return e, ok
}

// wireErrorInfo mirrors the server's JSON shape: {"name", "desc", "attrs": [...]}.
type wireErrorInfo struct {
	Name  string   `json:"name"`
	Desc  string   `json:"desc"`
	Attrs []string `json:"attrs"`
}

type wireMap struct {
	Version  uint16                   `json:"version"`
	Revision uint16                   `json:"revision"`
	Errors   map[string]wireErrorInfo `json:"errors"`
}

// Parse decodes the JSON payload returned by a get_error_map request
// (spec.md §4.3's handshake step "fetch the error map (version 1)").
// Status codes arrive as hex strings (e.g. "0x01") and are converted to
// uint16; unknown attribute strings are skipped rather than treated as
// a parse failure, matching the original's forward-compatible handling
// of newer attribute names it doesn't yet recognize.
func Parse(data []byte) (*Map, error) {
	var wm wireMap
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("errmap: decoding payload: %w", err)
	}

	m := &Map{
		ID:       uuid.New(),
		Version:  wm.Version,
		Revision: wm.Revision,
		Errors:   make(map[uint16]ErrorInfo, len(wm.Errors)),
	}

	for hexCode, info := range wm.Errors {
		code, err := strconv.ParseUint(hexCode, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("errmap: invalid status code %q: %w", hexCode, err)
		}

		attrs := make(map[Attribute]bool, len(info.Attrs))
		for _, a := range info.Attrs {
			attr := Attribute(a)
			if !knownAttributes[attr] {
				continue
			}
			attrs[attr] = true
		}

		m.Errors[uint16(code)] = ErrorInfo{
			Code:        uint16(code),
			Name:        info.Name,
			Description: info.Desc,
			Attributes:  attrs,
		}
	}

	return m, nil
}
