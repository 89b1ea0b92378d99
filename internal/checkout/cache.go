package checkout

import (
	"strings"
	"sync"
)

// QueryCache holds data the storefront has already fetched (orders,
// customer profile). It is shared by all sessions of one process.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string]any)}
}

func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *QueryCache) Set(key string, v any) {
	c.mu.Lock()
	c.entries[key] = v
	c.mu.Unlock()
}

// Invalidate drops every key starting with prefix and returns how many
// entries went.
func (c *QueryCache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func orderKey(id string) string { return "order:" + id }

const customerPrefix = "customer:"
