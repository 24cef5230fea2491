package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeFeatures_RoundTrip(t *testing.T) {
	features := []HelloFeature{FeatureSnappy, FeatureCollections, FeatureJSON}
	encoded := EncodeFeatures(features)
	decoded := DecodeFeatures(encoded)
	assert.Equal(t, features, decoded)
}

func TestFeatureSet_Has(t *testing.T) {
	fs := NewFeatureSet([]HelloFeature{FeatureCollections, FeatureSnappy})
	assert.True(t, fs.Has(FeatureCollections))
	assert.False(t, fs.Has(FeatureTracing))
}

func TestIsValidHelloFeature(t *testing.T) {
	assert.True(t, IsValidHelloFeature(uint16(FeatureCollections)))
	assert.False(t, IsValidHelloFeature(0xff))
}
