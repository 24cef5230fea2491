package meridian

import (
	"context"
	"testing"
	"time"

	"github.com/meridiandb/meridian-go/internal/wire"
	"github.com/stretchr/testify/assert"
)

func TestWaitFixedBackoff_ReturnsTrueBeforeDeadline(t *testing.T) {
	var b Bucket
	deadline := time.Now().Add(time.Hour)
	assert.True(t, b.waitFixedBackoff(context.Background(), time.Millisecond, deadline))
}

func TestWaitFixedBackoff_ReturnsFalsePastDeadline(t *testing.T) {
	var b Bucket
	deadline := time.Now().Add(time.Millisecond)
	assert.False(t, b.waitFixedBackoff(context.Background(), 10*time.Millisecond, deadline))
}

func TestWaitFixedBackoff_ReturnsFalseOnContextCancel(t *testing.T) {
	var b Bucket
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, b.waitFixedBackoff(ctx, time.Hour, time.Now().Add(time.Hour)))
}

func TestDecodeCollectionID_Roundtrip(t *testing.T) {
	resp := &wire.Frame{Extras: []byte{0, 0, 0, 0, 0, 0, 0, 42}}
	id, err := decodeCollectionID(resp)
	assert.NoError(t, err)
	assert.Equal(t, uint32(42), id)
}

func TestDecodeCollectionID_TooShortExtrasErrors(t *testing.T) {
	resp := &wire.Frame{Extras: []byte{0, 1}}
	_, err := decodeCollectionID(resp)
	assert.Error(t, err)
}
