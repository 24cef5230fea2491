// Package wire implements the binary framing codec (spec component C2):
// encoding outgoing request frames and decoding incoming response frames
// over the alternate-request (framing-extras) memcached-binary wire
// format documented in spec.md §4.2 and §6, pinned precisely by
// original_source/ext/couchbase/protocol/{client_request,client_response}.hxx.
//
// Style is grounded on the standalone aliexpressru/gomemcached reference
// (other_examples) for how a Go client lays out binary.BigEndian header
// encode/decode around a fixed-size struct, adapted here to the 24-byte
// alternate-request header with framing extras rather than the classic
// 24-byte header without them.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// HeaderLen is the fixed header size for both magics.
	HeaderLen = 24

	magicRequest      = 0x80
	magicRequestAlt   = 0x08
	magicResponse     = 0x81
	magicResponseAlt  = 0x18
	magicServerPush   = 0x82 // unsolicited cluster-map notification
	magicServerPushAlt = 0x83

	// datatype bits
	datatypeJSON   = 0x01
	datatypeSnappy = 0x02

	// snappyMinValueLen and snappyMaxRatio implement spec.md §4.2's
	// compression gate: only compress when the value is at least this
	// long, and only keep the compressed form when it beats this ratio.
	snappyMinValueLen = 32
	snappyMaxRatio    = 0.83
)

// Frame is the decoded representation of one wire message, request or
// response, alternate-format (framing extras present).
type Frame struct {
	Magic          byte
	Opcode         Opcode
	Datatype       byte
	VBucketOrStatus uint16 // partition index on request, Status on response
	Opaque         uint32
	CAS            uint64

	FramingExtras []byte
	Extras        []byte
	Key           []byte
	Value         []byte

	// lengths stashed by DecodeHeader for DecodeBody to slice the body
	// with once the Value section is known to start.
	framingExtrasLen int
	extrasLen        int
	keyLen           int
}

// Status returns VBucketOrStatus as a Status; valid only on response frames.
func (f *Frame) Status() Status { return Status(f.VBucketOrStatus) }

// IsResponse reports whether Magic identifies a response frame (solicited
// or server-pushed).
func (f *Frame) IsResponse() bool {
	switch f.Magic {
	case magicResponse, magicResponseAlt, magicServerPush, magicServerPushAlt:
		return true
	default:
		return false
	}
}

// IsServerPush reports whether this response is one of the two
// server-initiated frames spec.md §4.3 calls out: an unsolicited
// cluster-map notification or a clock/status ping. These must be routed
// to the configuration handler instead of the opaque dispatch table.
func (f *Frame) IsServerPush() bool {
	return f.Magic == magicServerPush || f.Magic == magicServerPushAlt
}

// EncodeRequest serializes a request frame using the alternate-request
// magic (0x08) whenever FramingExtras is non-empty, and the classic
// magic (0x80) otherwise — the framing-extras-length nibble of the
// key-length field is only meaningful under the alt magic.
//
// Snappy compression of Value is applied by the caller via
// MaybeCompress before calling EncodeRequest; EncodeRequest itself only
// serializes whatever bytes and datatype it is given.
func EncodeRequest(f *Frame) ([]byte, error) {
	if !IsValidOpcode(f.Opcode) {
		return nil, fmt.Errorf("wire: refusing to encode unknown opcode 0x%02x", byte(f.Opcode))
	}

	useAlt := len(f.FramingExtras) > 0
	if len(f.FramingExtras) > 255 {
		return nil, fmt.Errorf("wire: framing extras too long (%d bytes)", len(f.FramingExtras))
	}
	if len(f.Key) > 255 && useAlt {
		return nil, fmt.Errorf("wire: key too long for alt-request framing (%d bytes)", len(f.Key))
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderLen+len(f.FramingExtras)+len(f.Extras)+len(f.Key)+len(f.Value)))

	magic := byte(magicRequest)
	if useAlt {
		magic = magicRequestAlt
	}
	buf.WriteByte(magic)
	buf.WriteByte(byte(f.Opcode))

	if useAlt {
		buf.WriteByte(byte(len(f.FramingExtras)))
		buf.WriteByte(byte(len(f.Key)))
	} else {
		var keyLen [2]byte
		binary.BigEndian.PutUint16(keyLen[:], uint16(len(f.Key)))
		buf.Write(keyLen[:])
	}

	buf.WriteByte(byte(len(f.Extras)))
	buf.WriteByte(f.Datatype)

	var vbucket [2]byte
	binary.BigEndian.PutUint16(vbucket[:], f.VBucketOrStatus)
	buf.Write(vbucket[:])

	bodyLen := len(f.FramingExtras) + len(f.Extras) + len(f.Key) + len(f.Value)
	var bodyLenB [4]byte
	binary.BigEndian.PutUint32(bodyLenB[:], uint32(bodyLen))
	buf.Write(bodyLenB[:])

	var opaqueB [4]byte
	binary.BigEndian.PutUint32(opaqueB[:], f.Opaque)
	buf.Write(opaqueB[:])

	var casB [8]byte
	binary.BigEndian.PutUint64(casB[:], f.CAS)
	buf.Write(casB[:])

	buf.Write(f.FramingExtras)
	buf.Write(f.Extras)
	buf.Write(f.Key)
	buf.Write(f.Value)

	return buf.Bytes(), nil
}

// DecodeHeader parses exactly HeaderLen bytes. The caller is responsible
// for then reading exactly bodyLen more bytes and calling DecodeBody —
// this split matches spec.md §4.2's "read exactly 24 header bytes, then
// exactly body_length payload bytes" framing discipline, which is what
// lets a stream reader avoid buffering an unbounded amount of data from a
// misbehaving peer before it knows how much to expect.
func DecodeHeader(hdr []byte) (f *Frame, bodyLen int, err error) {
	if len(hdr) != HeaderLen {
		return nil, 0, fmt.Errorf("wire: header must be %d bytes, got %d", HeaderLen, len(hdr))
	}

	magic := hdr[0]
	if !isKnownMagic(magic) {
		return nil, 0, fmt.Errorf("%w: 0x%02x", ErrInvalidMagic, magic)
	}

	f = &Frame{Magic: magic, Opcode: Opcode(hdr[1]), Datatype: hdr[4]}

	useAlt := magic == magicRequestAlt || magic == magicResponseAlt || magic == magicServerPushAlt
	var framingExtrasLen, keyLen int
	if useAlt {
		framingExtrasLen = int(hdr[2])
		keyLen = int(hdr[3])
	} else {
		keyLen = int(binary.BigEndian.Uint16(hdr[2:4]))
	}
	extrasLen := int(hdr[5])
	f.VBucketOrStatus = binary.BigEndian.Uint16(hdr[6:8])
	bodyLen = int(binary.BigEndian.Uint32(hdr[8:12]))
	f.Opaque = binary.BigEndian.Uint32(hdr[12:16])
	f.CAS = binary.BigEndian.Uint64(hdr[16:24])

	f.framingExtrasLen = framingExtrasLen
	f.extrasLen = extrasLen
	f.keyLen = keyLen

	return f, bodyLen, nil
}

// ErrInvalidMagic is returned by DecodeHeader when the leading magic
// byte doesn't match any known request/response/server-push value.
// spec.md §4.2: "If the next frame's magic byte is invalid, discard the
// buffer (the stream is unrecoverable at frame boundaries)" — callers
// must treat this as fatal for the connection, not retry the read.
var ErrInvalidMagic = fmt.Errorf("wire: invalid frame magic byte")

func isKnownMagic(b byte) bool {
	switch b {
	case magicRequest, magicRequestAlt, magicResponse, magicResponseAlt, magicServerPush, magicServerPushAlt:
		return true
	default:
		return false
	}
}

// DecodeBody slices body (exactly bodyLen bytes, as returned alongside f
// by DecodeHeader) into FramingExtras/Extras/Key/Value, decompressing
// Value if the Snappy datatype bit is set. Keys and extras are never
// compressed, only the value section, per spec.md §4.2.
func DecodeBody(f *Frame, body []byte) error {
	fe, ex, key := f.framingExtrasLen, f.extrasLen, f.keyLen
	need := fe + ex + key
	if len(body) < need {
		return fmt.Errorf("wire: body too short: need at least %d bytes for framing+extras+key, got %d", need, len(body))
	}

	f.FramingExtras = body[:fe]
	f.Extras = body[fe : fe+ex]
	f.Key = body[fe+ex : fe+ex+key]
	value := body[fe+ex+key:]

	if f.Datatype&datatypeSnappy != 0 {
		decompressed, err := snappyDecode(value)
		if err != nil {
			return fmt.Errorf("wire: snappy decompress: %w", err)
		}
		f.Value = decompressed
	} else {
		f.Value = value
	}

	return nil
}
