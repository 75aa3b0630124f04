package artwork

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// MinCacheCapacity and MaxCacheCapacity bound NewCache.
	MinCacheCapacity = 1
	MaxCacheCapacity = 500

	// entryOverhead approximates the per-entry bookkeeping cost in bytes.
	entryOverhead = 256
)

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	Bytes     int64 `json:"bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Cache is a bounded LRU of artifacts keyed by album. Capacity is enforced by
// entry count; Bytes is an estimate for diagnostics only.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[TrackKey, *Artifact]
	capacity int

	bytes     int64
	hits      int64
	misses    int64
	evictions int64
}

// NewCache creates a cache holding at most capacity entries, clamped to [1,500].
func NewCache(capacity int) *Cache {
	capacity = clampInt(capacity, MinCacheCapacity, MaxCacheCapacity)
	c := &Cache{capacity: capacity}

	// only fails for non-positive sizes
	lru, err := simplelru.NewLRU[TrackKey, *Artifact](capacity, c.onEvict)
	if err != nil {
		panic(err)
	}
	c.lru = lru
	return c
}

// onEvict runs under c.mu from inside simplelru.
func (c *Cache) onEvict(key TrackKey, art *Artifact) {
	c.bytes -= entrySize(key, art)
	c.evictions++
}

// Get returns the artifact for key and marks it most recently used.
func (c *Cache) Get(key TrackKey) (*Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key == "" {
		c.misses++
		return nil, false
	}
	art, ok := c.lru.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return art, ok
}

// Put stores art under key, evicting the least recently used entry when full.
// Empty keys and nil artifacts are ignored.
func (c *Cache) Put(key TrackKey, art *Artifact) {
	c.PutIf(key, art, nil)
}

// PutIf stores art only if cond returns true. cond runs while the cache lock is
// held, so a false result guarantees the entry was never visible.
func (c *Cache) PutIf(key TrackKey, art *Artifact, cond func() bool) bool {
	if key == "" || art == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cond != nil && !cond() {
		return false
	}

	// Add does not call onEvict when replacing an existing key
	if old, ok := c.lru.Peek(key); ok {
		c.bytes -= entrySize(key, old)
	}
	c.lru.Add(key, art)
	c.bytes += entrySize(key, art)
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the keys from least to most recently used.
func (c *Cache) Keys() []TrackKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.lru.Len(),
		Capacity:  c.capacity,
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Clear drops every entry. Counters other than Bytes are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	evictions := c.evictions
	c.lru.Purge()
	c.evictions = evictions
	c.bytes = 0
}

func entrySize(key TrackKey, art *Artifact) int64 {
	if art == nil {
		return int64(len(key)) + entryOverhead
	}
	return int64(len(art.Pixels)+len(art.Encoded)+len(art.Source)+len(key)) + entryOverhead
}
