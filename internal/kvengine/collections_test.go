package kvengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionCache_PutGet(t *testing.T) {
	c := NewCollectionCache()
	path := Path("inventory", "products")

	_, ok := c.Get(path)
	assert.False(t, ok)

	c.Put(path, 7)
	id, ok := c.Get(path)
	assert.True(t, ok)
	assert.Equal(t, uint32(7), id)
}

func TestCollectionCache_InvalidateDropsEntry(t *testing.T) {
	c := NewCollectionCache()
	path := Path("inventory", "products")
	c.Put(path, 7)

	c.Invalidate(path)

	_, ok := c.Get(path)
	assert.False(t, ok)
}

func TestCollectionCache_InvalidateUnknownPathIsNoOp(t *testing.T) {
	c := NewCollectionCache()
	assert.NotPanics(t, func() {
		c.Invalidate(Path("scope", "never-resolved"))
	})
}
