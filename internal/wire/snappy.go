package wire

import "github.com/golang/snappy"

func snappyDecode(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}

// MaybeCompress applies spec.md §4.2's Snappy compression gate to value:
// only compress when the peer advertised the capability, the value is at
// least snappyMinValueLen bytes, and the compressed form is no larger
// than snappyMaxRatio of the original. It returns the bytes to actually
// send and the datatype byte with the Snappy bit set if compression was
// applied.
func MaybeCompress(value []byte, datatype byte, peerSupportsSnappy bool) (out []byte, outDatatype byte) {
	if !peerSupportsSnappy || len(value) < snappyMinValueLen {
		return value, datatype
	}

	compressed := snappy.Encode(nil, value)
	if float64(len(compressed)) > snappyMaxRatio*float64(len(value)) {
		return value, datatype
	}

	return compressed, datatype | datatypeSnappy
}
