package connstr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SchemeDefaults(t *testing.T) {
	p, err := Parse("couchbase://node1.example.com")
	require.NoError(t, err)
	assert.False(t, p.TLS)
	assert.EqualValues(t, 11210, p.DefaultPort)
	assert.Equal(t, ModeGCCCP, p.DefaultMode)

	p, err = Parse("couchbases://node1.example.com")
	require.NoError(t, err)
	assert.True(t, p.TLS)
	assert.EqualValues(t, 11207, p.DefaultPort)
}

func TestParse_MultipleNodesBucketAndParams(t *testing.T) {
	p, err := Parse("couchbase://a.example.com:11211,b.example.com=http,c.example.com/mybucket?network=external&enable_dns_srv=true")
	require.NoError(t, err)
	require.Len(t, p.Nodes, 3)

	assert.Equal(t, "a.example.com", p.Nodes[0].Host)
	assert.EqualValues(t, 11211, p.Nodes[0].Port)

	assert.Equal(t, "b.example.com", p.Nodes[1].Host)
	assert.Equal(t, ModeHTTP, p.Nodes[1].Mode)

	assert.Equal(t, "c.example.com", p.Nodes[2].Host)
	assert.EqualValues(t, p.DefaultPort, p.Nodes[2].Port)

	assert.Equal(t, "mybucket", p.DefaultBucketName)
	assert.Equal(t, "external", p.Options.Network)
	assert.True(t, p.Options.EnableDNSSRV)
	assert.Empty(t, p.Warnings)
}

func TestParse_UnknownModeTagProducesWarningNotError(t *testing.T) {
	p, err := Parse("couchbase://a.example.com=bogus")
	require.NoError(t, err)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, "mode", p.Warnings[0].Field)
	assert.Equal(t, ModeUnspecified, p.Nodes[0].Mode)
}

func TestParse_UnknownQueryParamProducesWarning(t *testing.T) {
	p, err := Parse("couchbase://a.example.com?some_future_flag=1")
	require.NoError(t, err)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, "some_future_flag", p.Warnings[0].Field)
}

func TestParse_RejectsMissingScheme(t *testing.T) {
	_, err := Parse("a.example.com")
	assert.Error(t, err)
}

func TestParse_RejectsUnknownScheme(t *testing.T) {
	_, err := Parse("ftp://a.example.com")
	assert.Error(t, err)
}

func TestParse_RejectsEmptyInput(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestOrigin_RoundRobinAndExhaustion(t *testing.T) {
	p, err := Parse("couchbase://a.example.com,b.example.com")
	require.NoError(t, err)

	o := NewOrigin("user1", "pencil", p)
	ctx := context.Background()

	a1, err := o.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", a1.Host)
	assert.False(t, o.Exhausted())

	a2, err := o.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b.example.com", a2.Host)
	assert.True(t, o.Exhausted())

	_, err = o.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)

	o.Restart()
	assert.False(t, o.Exhausted())
	a3, err := o.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", a3.Host)
}

func TestOrigin_RespectsContextCancellation(t *testing.T) {
	p, err := Parse("couchbase://a.example.com")
	require.NoError(t, err)
	o := NewOrigin("u", "p", p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = o.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
