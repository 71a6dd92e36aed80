package cache

import (
	"sync"
	"time"
)

const ttlCacheMaxEntries = 4096

type entry struct {
	b   []byte
	exp time.Time
}

// TTLCache is the in-process fallback when Redis is disabled. Expired entries
// are dropped on read; a full sweep runs when the map hits its size cap.
type TTLCache struct {
	mu sync.RWMutex
	m  map[string]entry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{m: make(map[string]entry)}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	if len(c.m) >= ttlCacheMaxEntries {
		c.sweepLocked()
	}
	c.m[key] = entry{b: value, exp: exp}
	c.mu.Unlock()
	return nil
}

// sweepLocked drops expired entries; if everything is live the whole map is
// reset, which is acceptable for a response cache.
func (c *TTLCache) sweepLocked() {
	now := time.Now()
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
	if len(c.m) >= ttlCacheMaxEntries {
		c.m = make(map[string]entry)
	}
}
