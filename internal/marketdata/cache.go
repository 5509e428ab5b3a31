package marketdata

import "sync"

// epochCache is a bounded map evicting the oldest insertion first. Keys carry
// the caller's epoch, so entries go stale by becoming unreachable rather than
// by expiring; the cache never reads the clock.
type epochCache[V any] struct {
	mu      sync.Mutex
	max     int
	entries map[string]V
	order   []string
}

func newEpochCache[V any](maxEntries int) *epochCache[V] {
	return &epochCache[V]{
		max:     max(maxEntries, 1),
		entries: make(map[string]V),
	}
}

func (c *epochCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	return v, ok
}

func (c *epochCache[V]) set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = v

	for len(c.order) > c.max {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *epochCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
