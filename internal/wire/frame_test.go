package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, f *Frame) *Frame {
	t.Helper()
	encoded, err := EncodeRequest(f)
	require.NoError(t, err)

	header := encoded[:HeaderLen]
	body := encoded[HeaderLen:]

	decoded, bodyLen, err := DecodeHeader(header)
	require.NoError(t, err)
	require.Equal(t, len(body), bodyLen)

	require.NoError(t, DecodeBody(decoded, body))
	return decoded
}

func TestEncodeDecodeRequest_RoundTrip(t *testing.T) {
	for _, op := range []Opcode{OpGet, OpUpsert, OpDelete, OpTouch, OpSubdocMultiMutation} {
		f := &Frame{
			Opcode: op,
			Key:    []byte("hello"),
			Extras: []byte{0, 0, 0, 0},
			Value:  []byte(`{"a":1}`),
			Opaque: 42,
			CAS:    7,
		}

		decoded := roundTrip(t, f)
		assert.Equal(t, f.Opcode, decoded.Opcode)
		assert.Equal(t, f.Key, decoded.Key)
		assert.Equal(t, f.Extras, decoded.Extras)
		assert.Equal(t, f.Value, decoded.Value)
		assert.Equal(t, f.Opaque, decoded.Opaque)
		assert.Equal(t, f.CAS, decoded.CAS)
	}
}

func TestEncodeDecodeRequest_WithFramingExtras_UsesAltMagic(t *testing.T) {
	f := &Frame{
		Opcode:        OpUpsert,
		Key:           []byte("k"),
		FramingExtras: []byte{0x11, 0x01}, // durability_requirement len 1, value 0x01
		Value:         []byte("v"),
		Opaque:        1,
	}

	encoded, err := EncodeRequest(f)
	require.NoError(t, err)
	assert.Equal(t, byte(magicRequestAlt), encoded[0])

	decoded, bodyLen, err := DecodeHeader(encoded[:HeaderLen])
	require.NoError(t, err)
	require.NoError(t, DecodeBody(decoded, encoded[HeaderLen:HeaderLen+bodyLen]))
	assert.Equal(t, f.FramingExtras, decoded.FramingExtras)
	assert.Equal(t, f.Key, decoded.Key)
}

func TestEncodeRequest_RejectsUnknownOpcode(t *testing.T) {
	_, err := EncodeRequest(&Frame{Opcode: Opcode(0xfd)})
	assert.Error(t, err)
}

func TestDecodeHeader_InvalidMagicIsFatal(t *testing.T) {
	hdr := make([]byte, HeaderLen)
	hdr[0] = 0x99
	_, _, err := DecodeHeader(hdr)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestDecodeHeader_WrongLength(t *testing.T) {
	_, _, err := DecodeHeader(make([]byte, HeaderLen-1))
	assert.Error(t, err)
}

func TestSnappy_CompressedAndUncompressedDecodeToSameValue(t *testing.T) {
	value := make([]byte, 256)
	for i := range value {
		value[i] = byte(i % 7) // compressible pattern
	}

	compressed, dt := MaybeCompress(value, 0, true)
	require.NotEqual(t, value, compressed, "compressible value over threshold should shrink")
	assert.NotZero(t, dt&datatypeSnappy)

	f := &Frame{Opcode: OpUpsert, Key: []byte("k"), Value: compressed, Datatype: dt, Opaque: 1}
	decoded := roundTrip(t, f)
	assert.Equal(t, value, decoded.Value)

	uncompressed, dt2 := MaybeCompress(value, 0, false)
	assert.Equal(t, value, uncompressed)
	assert.Zero(t, dt2&datatypeSnappy)
}

func TestMaybeCompress_BelowThresholdLeavesValueAlone(t *testing.T) {
	value := []byte("short")
	out, dt := MaybeCompress(value, 0, true)
	assert.Equal(t, value, out)
	assert.Zero(t, dt&datatypeSnappy)
}

func TestMaybeCompress_PoorRatioLeavesValueAlone(t *testing.T) {
	// Random-looking bytes rarely compress below the 83% ratio gate.
	value := make([]byte, 64)
	for i := range value {
		value[i] = byte(i*97 + 31)
	}
	out, dt := MaybeCompress(value, 0, true)
	if dt&datatypeSnappy != 0 {
		t.Skip("pattern happened to compress well enough; not a useful negative case here")
	}
	assert.Equal(t, value, out)
}

func TestIsSubdocPathError(t *testing.T) {
	assert.True(t, IsSubdocPathError(StatusSubdocPathNotFound))
	assert.True(t, IsSubdocPathError(StatusSubdocInvalidXattrOrder))
	assert.False(t, IsSubdocPathError(StatusSuccess))
	assert.False(t, IsSubdocPathError(StatusTemporaryFailure))
}

func TestParseFramingExtras_ServerDuration(t *testing.T) {
	// ID 0 (server duration), length 2, value big-endian u16 = 1000.
	tlv := []byte{0x02, 0x03, 0xe8}
	entries, err := ParseFramingExtras(tlv)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	micros, ok := ServerDuration(entries)
	require.True(t, ok)
	assert.InDelta(t, 82979.3, micros, 1.0)
}

func TestParseFramingExtras_Empty(t *testing.T) {
	entries, err := ParseFramingExtras(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFramingExtras_Truncated(t *testing.T) {
	_, err := ParseFramingExtras([]byte{0x02, 0x01}) // claims length 2, only 1 byte follows
	assert.Error(t, err)
}

func TestOpcodeValidity(t *testing.T) {
	assert.True(t, IsValidOpcode(OpGet))
	assert.True(t, IsValidOpcode(OpGetCollectionID))
	assert.False(t, IsValidOpcode(Opcode(0xde)))
}

func TestIdempotentOpcodes(t *testing.T) {
	assert.True(t, IsIdempotent(OpGet))
	assert.True(t, IsIdempotent(OpObserve))
	assert.False(t, IsIdempotent(OpUpsert))
	assert.False(t, IsIdempotent(OpDelete))
}
