package embedder

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when NewCache is given a non-positive size
const DefaultCacheSize = 10000

// Cache is a concurrency-safe LRU of embeddings keyed by content hash.
// Entries are copied on the way in and out.
type Cache struct {
	entries *lru.Cache[string, *Embedding]
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheStats is a point-in-time view of cache effectiveness
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

// CacheReporter is implemented by embedders that keep a Cache
type CacheReporter interface {
	CacheStats() (CacheStats, bool)
}

// NewCache creates a cache holding at most maxLen embeddings
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	entries, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		entries, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{entries: entries}
}

// Get returns a copy of the cached embedding for hash
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.entries.Get(hash)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return emb.clone(), true
}

// Set stores a copy of emb, evicting the least recently used entry when full
func (c *Cache) Set(hash string, emb *Embedding) {
	c.entries.Add(hash, emb.clone())
}

// Size returns the number of cached embeddings
func (c *Cache) Size() int {
	return c.entries.Len()
}

// Clear empties the cache. Counters are kept.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Stats reports size and hit counters. A nil Cache reports zeros.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{Size: c.Size(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (e *Embedding) clone() *Embedding {
	out := *e
	out.Vector = append([]float32(nil), e.Vector...)
	return &out
}
