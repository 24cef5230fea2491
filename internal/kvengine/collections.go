package kvengine

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCollectionCacheSize bounds the per-session resolved-id cache.
// A connection that touches more distinct collections than this in its
// lifetime pays an extra get_collection_id round trip on the evicted
// entries' next use — acceptable since collection counts are normally
// small and static.
const defaultCollectionCacheSize = 1024

// CollectionCache maps "scope.collection" path strings to the
// server-assigned numeric collection ID, per spec.md §4.3's "Collection
// resolution": a per-connection cache populated from get_collection_id
// responses and invalidated on unknown_collection.
type CollectionCache struct {
	cache *lru.Cache[string, uint32]
}

// NewCollectionCache builds an empty cache sized for a single session's
// lifetime.
func NewCollectionCache() *CollectionCache {
	c, _ := lru.New[string, uint32](defaultCollectionCacheSize)
	return &CollectionCache{cache: c}
}

// Path formats the scope/collection pair the cache keys on.
func Path(scope, collection string) string {
	return scope + "." + collection
}

// Get returns the cached numeric ID for path, if present.
func (c *CollectionCache) Get(path string) (uint32, bool) {
	return c.cache.Get(path)
}

// Put records a resolved ID, as learned from a get_collection_id response.
func (c *CollectionCache) Put(path string, id uint32) {
	c.cache.Add(path, id)
}

// Invalidate drops a cache entry — called when a request using a
// cached ID comes back with unknown_collection, per spec.md §4.3.
func (c *CollectionCache) Invalidate(path string) {
	c.cache.Remove(path)
}
