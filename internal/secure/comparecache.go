package secure

import (
	"fmt"
	"sync"
)

// CompareCache holds vault-side credential values for accounts whose plugins
// run in reverse flow. Pull passes compare plugin-originated credentials
// against these entries instead of pushing. Entries live in protected
// buffers and the whole cache is cleared when monitoring starts or stops.
type CompareCache struct {
	entries map[string]*Buffer
	mu      sync.Mutex
}

// NewCompareCache creates an empty comparison cache.
func NewCompareCache() *CompareCache {
	return &CompareCache{entries: make(map[string]*Buffer)}
}

func compareKey(asset, account, kind string) string {
	return fmt.Sprintf("%s/%s/%s", asset, account, kind)
}

// Put stores a credential value for later comparison, replacing any
// previous entry for the same account and kind.
func (c *CompareCache) Put(value []byte, asset, account, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := compareKey(asset, account, kind)
	if old, ok := c.entries[key]; ok {
		old.Destroy()
	}
	c.entries[key] = NewBuffer(value)
}

// Get returns the stored value for an account and kind, or false if absent.
func (c *CompareCache) Get(asset, account, kind string) ([]byte, bool) {
	c.mu.Lock()
	buf, ok := c.entries[compareKey(asset, account, kind)]
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	data, err := buf.Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Len returns the number of cached entries.
func (c *CompareCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear destroys all entries.
func (c *CompareCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, buf := range c.entries {
		buf.Destroy()
		delete(c.entries, key)
	}
}
