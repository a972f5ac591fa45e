package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// unboundedEntries is the entry-count ceiling passed to the underlying LRU;
// eviction in this cache is driven by total byte size, not entry count, so
// this just needs to be large enough that entry-count eviction never kicks
// in before byte-size eviction does.
const unboundedEntries = 1 << 20

// MemoryCache is the L1, in-process cache: a byte-capacity-bounded LRU of
// rendered frames. Unlike a plain TTL map, it actively evicts the least
// recently used entries once the configured byte budget is exceeded, so a
// burst of large renders can never grow the process's memory without bound.
type MemoryCache struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, *cacheItem]
	maxBytes int64
	curBytes int64
}

type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an in-process cache bounded to maxBytes of stored
// values.
func NewMemoryCache(maxBytes int64) (*MemoryCache, error) {
	mc := &MemoryCache{maxBytes: maxBytes}

	evictCache, err := lru.NewWithEvict[string, *cacheItem](unboundedEntries, mc.onEvict)
	if err != nil {
		return nil, err
	}
	mc.lru = evictCache
	return mc, nil
}

func (m *MemoryCache) onEvict(_ string, item *cacheItem) {
	m.curBytes -= int64(len(item.value))
}

// Get retrieves a value from cache, treating expired entries as misses.
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(item.expiration) {
		m.lru.Remove(key)
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

// Set stores a value, evicting the least recently used entries until the
// cache is back under its byte budget.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.lru.Peek(key); ok {
		m.curBytes -= int64(len(old.value))
	}

	m.lru.Add(key, &cacheItem{value: value, expiration: time.Now().Add(ttl)})
	m.curBytes += int64(len(value))

	for m.curBytes > m.maxBytes && m.lru.Len() > 0 {
		if _, _, ok := m.lru.RemoveOldest(); !ok {
			break
		}
	}

	return nil
}

// Delete removes a value from cache.
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Remove(key)
	return nil
}

// Exists checks if a non-expired key exists.
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lru.Peek(key)
	if !ok {
		return false, nil
	}
	return !time.Now().After(item.expiration), nil
}

// Clear removes all keys matching a `*`-suffixed prefix pattern, or
// everything if pattern is "*".
func (m *MemoryCache) Clear(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.lru.Keys() {
		if matchPattern(key, pattern) {
			m.lru.Remove(key)
		}
	}
	return nil
}

// Len returns the number of entries currently cached.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Close releases all entries held by the cache.
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lru.Purge()
	return nil
}

// matchPattern performs the same simple `*`-suffix wildcard matching used
// against the Redis-backed L2 cache's SCAN pattern, so Clear behaves
// identically regardless of which tier is asked.
func matchPattern(s, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(s, prefix)
	}
	return s == pattern
}
