// File path: internal/insights/cache.go
package insights

import (
	"sync"
	"time"
)

type cacheEntry struct {
	text      string
	expiresAt time.Time
}

type ttlCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	ttl  time.Duration
}

func newTTLCache(ttl time.Duration) *ttlCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ttlCache{data: make(map[string]cacheEntry), ttl: ttl}
}

func (c *ttlCache) get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return "", false
	}
	return entry.text, true
}

func (c *ttlCache) set(key, text string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.data[key] = cacheEntry{text: text, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
