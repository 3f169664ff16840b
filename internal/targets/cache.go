// File path: internal/targets/cache.go
package targets

import (
	"container/list"
	"sync"
)

type cacheEntry struct {
	key   string
	value MatchResult
}

type matchCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	ll       *list.List
}

const matchCacheSize = 512

func newMatchCache(size int) *matchCache {
	if size <= 0 {
		size = matchCacheSize
	}
	return &matchCache{
		capacity: size,
		items:    make(map[string]*list.Element, size),
		ll:       list.New(),
	}
}

func (c *matchCache) Get(key string) (MatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c == nil || c.ll == nil {
		return MatchResult{}, false
	}
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		if entry, ok := elem.Value.(cacheEntry); ok {
			return entry.value, true
		}
	}
	return MatchResult{}, false
}

func (c *matchCache) Set(key string, value MatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c == nil || c.ll == nil {
		return
	}
	if elem, ok := c.items[key]; ok {
		elem.Value = cacheEntry{key: key, value: value}
		c.ll.MoveToFront(elem)
		return
	}
	elem := c.ll.PushFront(cacheEntry{key: key, value: value})
	c.items[key] = elem
	if c.ll.Len() > c.capacity {
		tail := c.ll.Back()
		if tail != nil {
			c.ll.Remove(tail)
			if entry, ok := tail.Value.(cacheEntry); ok {
				delete(c.items, entry.key)
			}
		}
	}
}

func (c *matchCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c == nil {
		return
	}
	c.items = make(map[string]*list.Element)
	c.ll = list.New()
}
