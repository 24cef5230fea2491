package wire

import (
	"fmt"
	"math"
)

// ResponseFrameInfoID identifies a TLV entry in a response's framing
// extras. Grounded on original_source/ext/couchbase/protocol/frame_info_id.hxx.
type ResponseFrameInfoID byte

const (
	ResponseFrameInfoServerDuration ResponseFrameInfoID = 0x00
	ResponseFrameInfoReadUnits      ResponseFrameInfoID = 0x01
	ResponseFrameInfoWriteUnits     ResponseFrameInfoID = 0x02
)

// RequestFrameInfoID identifies a TLV entry in a request's framing
// extras.
type RequestFrameInfoID byte

const (
	RequestFrameInfoBarrier               RequestFrameInfoID = 0x00
	RequestFrameInfoDurabilityRequirement RequestFrameInfoID = 0x01
	RequestFrameInfoDCPStreamID           RequestFrameInfoID = 0x02
	RequestFrameInfoOpenTracingContext    RequestFrameInfoID = 0x03
	RequestFrameInfoImpersonateUser       RequestFrameInfoID = 0x04
	RequestFrameInfoPreserveTTL           RequestFrameInfoID = 0x05
)

// FrameInfoEntry is one decoded TLV entry from a framing-extras byte
// stream. ID/Length are encoded in the leading byte's high/low nibbles
// unless either nibble is 0xf, in which case an extra length-extension
// byte follows (the original's "Len:15" escape).
type FrameInfoEntry struct {
	ID    byte
	Value []byte
}

// ParseFramingExtras walks the TLV stream in a response's FramingExtras
// section. Unknown IDs are skipped (not an error) because new frame-info
// kinds can be introduced by the server without breaking older clients.
func ParseFramingExtras(b []byte) ([]FrameInfoEntry, error) {
	var entries []FrameInfoEntry
	for len(b) > 0 {
		lead := b[0]
		id := lead >> 4
		length := int(lead & 0x0f)
		b = b[1:]

		if id == 0x0f {
			if len(b) == 0 {
				return nil, fmt.Errorf("wire: truncated framing-extras ID escape")
			}
			id = 0x0f + b[0]
			b = b[1:]
		}
		if length == 0x0f {
			if len(b) == 0 {
				return nil, fmt.Errorf("wire: truncated framing-extras length escape")
			}
			length = 0x0f + int(b[0])
			b = b[1:]
		}
		if len(b) < length {
			return nil, fmt.Errorf("wire: framing-extras entry truncated: need %d bytes, have %d", length, len(b))
		}

		entries = append(entries, FrameInfoEntry{ID: id, Value: b[:length]})
		b = b[length:]
	}
	return entries, nil
}

// ServerDuration decodes a response's server-processing-duration frame
// info, encoded per spec.md §4.2 as pow(u16, 1.74) / 2 microseconds.
func ServerDuration(entries []FrameInfoEntry) (microseconds float64, ok bool) {
	for _, e := range entries {
		if e.ID != byte(ResponseFrameInfoServerDuration) || len(e.Value) != 2 {
			continue
		}
		raw := uint16(e.Value[0])<<8 | uint16(e.Value[1])
		return math.Pow(float64(raw), 1.74) / 2, true
	}
	return 0, false
}
