// Package cache holds the process-local mirror of server item state.
package cache

import (
	"sync"

	"todosync/internal/model"
)

// Cache maps item id to the last known-good item from the server. It is a
// pure data holder: no I/O, no blocking beyond the mutex. Put is
// replace-in-place, last write wins. Entries live for the process lifetime.
type Cache struct {
	mu    sync.RWMutex
	items map[string]model.Item
}

func New() *Cache {
	return &Cache{items: make(map[string]model.Item)}
}

// Get returns the cached item and whether it is present.
func (c *Cache) Get(id string) (model.Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// Put stores item under its own id, replacing any previous value.
func (c *Cache) Put(item model.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

// All returns a snapshot of every cached item in unspecified order.
func (c *Cache) All() []model.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Item, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	return out
}

// Len reports the number of cached items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
