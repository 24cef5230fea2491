package errmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMap = `{
	"version": 1,
	"revision": 1,
	"errors": {
		"0x07": {"name": "NOT_MY_VBUCKET", "desc": "wrong node", "attrs": ["fetch-config", "retry-now"]},
		"0x86": {"name": "ETMPFAIL", "desc": "temp failure", "attrs": ["temp", "retry-later"]},
		"0x20": {"name": "AUTH_ERROR", "desc": "bad creds", "attrs": ["auth", "conn-state-invalidated", "some-future-attribute"]}
	}
}`

func TestParse_DecodesEntries(t *testing.T) {
	m, err := Parse([]byte(sampleMap))
	require.NoError(t, err)
	assert.EqualValues(t, 1, m.Version)
	require.Len(t, m.Errors, 3)

	notMyVbucket, ok := m.Lookup(0x07)
	require.True(t, ok)
	assert.Equal(t, "NOT_MY_VBUCKET", notMyVbucket.Name)
	assert.True(t, notMyVbucket.HasRetryAttribute())
	assert.True(t, notMyVbucket.Attributes[AttrFetchConfig])
}

func TestParse_SkipsUnknownAttributesWithoutFailing(t *testing.T) {
	m, err := Parse([]byte(sampleMap))
	require.NoError(t, err)

	authErr, ok := m.Lookup(0x20)
	require.True(t, ok)
	assert.False(t, authErr.HasRetryAttribute())
	assert.True(t, authErr.Attributes[AttrAuth])
	assert.True(t, authErr.Attributes[AttrConnStateInvalidated])
	_, hasUnknown := authErr.Attributes[Attribute("some-future-attribute")]
	assert.False(t, hasUnknown)
}

func TestParse_RetryLaterCountsAsRetryAttribute(t *testing.T) {
	m, err := Parse([]byte(sampleMap))
	require.NoError(t, err)
	tempFail, ok := m.Lookup(0x86)
	require.True(t, ok)
	assert.True(t, tempFail.HasRetryAttribute())
}

func TestLookup_MissingCode(t *testing.T) {
	m, err := Parse([]byte(sampleMap))
	require.NoError(t, err)
	_, ok := m.Lookup(0xFF)
	assert.False(t, ok)
}

func TestLookup_NilMapIsSafe(t *testing.T) {
	var m *Map
	_, ok := m.Lookup(0x01)
	assert.False(t, ok)
}

func TestParse_RejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}
