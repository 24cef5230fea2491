package wire

// HelloFeature is one optional capability negotiated during the Hello
// handshake step. Grounded on
// original_source/ext/couchbase/protocol/hello_feature.hxx.
type HelloFeature uint16

const (
	FeatureTLS                         HelloFeature = 0x02
	FeatureTCPNoDelay                  HelloFeature = 0x03
	FeatureMutationSeqno               HelloFeature = 0x04
	FeatureTCPDelay                    HelloFeature = 0x05
	FeatureXattr                       HelloFeature = 0x06
	FeatureXError                      HelloFeature = 0x07
	FeatureSelectBucket                HelloFeature = 0x08
	FeatureSnappy                      HelloFeature = 0x0a
	FeatureJSON                        HelloFeature = 0x0b
	FeatureDuplex                      HelloFeature = 0x0c
	FeatureClustermapChangeNotification HelloFeature = 0x0d
	FeatureUnorderedExecution          HelloFeature = 0x0e
	FeatureTracing                     HelloFeature = 0x0f
	FeatureAltRequestSupport           HelloFeature = 0x10
	FeatureSyncReplication             HelloFeature = 0x11
	FeatureCollections                 HelloFeature = 0x12
	FeatureOpenTracing                 HelloFeature = 0x13
	FeaturePreserveTTL                 HelloFeature = 0x14
	FeatureVattr                       HelloFeature = 0x15
	FeaturePointInTimeRecovery         HelloFeature = 0x16
	FeatureSubdocCreateAsDeleted       HelloFeature = 0x17
	FeatureSubdocDocumentMacroSupport HelloFeature = 0x18
)

// RequestedFeatures is the fixed list spec.md §4.3 step 3 says the
// session always asks for on Hello.
var RequestedFeatures = []HelloFeature{
	FeatureTCPNoDelay,
	FeatureMutationSeqno,
	FeatureXattr,
	FeatureXError,
	FeatureSelectBucket,
	FeatureSnappy,
	FeatureJSON,
	FeatureDuplex,
	FeatureClustermapChangeNotification,
	FeatureUnorderedExecution,
	FeatureAltRequestSupport,
	FeatureTracing,
	FeatureSyncReplication,
	FeatureVattr,
	FeatureCollections,
	FeatureSubdocCreateAsDeleted,
}

var validFeatures = func() map[HelloFeature]bool {
	m := make(map[HelloFeature]bool, len(RequestedFeatures)+6)
	for _, f := range RequestedFeatures {
		m[f] = true
	}
	m[FeatureTLS] = true
	m[FeatureTCPDelay] = true
	m[FeatureOpenTracing] = true
	m[FeaturePreserveTTL] = true
	m[FeaturePointInTimeRecovery] = true
	m[FeatureSubdocDocumentMacroSupport] = true
	return m
}()

// IsValidHelloFeature reports whether code is a recognized feature.
func IsValidHelloFeature(code uint16) bool { return validFeatures[HelloFeature(code)] }

// EncodeFeatures serializes a feature list as the Hello request body:
// a sequence of big-endian uint16 codes.
func EncodeFeatures(features []HelloFeature) []byte {
	out := make([]byte, len(features)*2)
	for i, f := range features {
		out[i*2] = byte(f >> 8)
		out[i*2+1] = byte(f)
	}
	return out
}

// DecodeFeatures parses a Hello response body (or request body) into
// the feature list the peer listed.
func DecodeFeatures(body []byte) []HelloFeature {
	out := make([]HelloFeature, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		out = append(out, HelloFeature(uint16(body[i])<<8|uint16(body[i+1])))
	}
	return out
}

// FeatureSet is a negotiated set of features, as returned by the
// server's Hello response — the session keeps this for the lifetime of
// the connection (spec.md §3's "the set of negotiated optional
// features").
type FeatureSet map[HelloFeature]bool

// NewFeatureSet builds a FeatureSet from a decoded feature list.
func NewFeatureSet(features []HelloFeature) FeatureSet {
	fs := make(FeatureSet, len(features))
	for _, f := range features {
		fs[f] = true
	}
	return fs
}

func (fs FeatureSet) Has(f HelloFeature) bool { return fs[f] }
