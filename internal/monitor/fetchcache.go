package monitor

import (
	"github.com/systmms/credbroker/internal/secure"
	"github.com/systmms/credbroker/pkg/credential"
)

// FetchCache memoizes vault fetches within a single dispatch pass so a
// credential is retrieved at most once per (fetch key, kind), no matter how
// many mappings consume it. Failed fetches are memoized too: the pass does
// not retry the vault for a key it already failed on. Entries live in
// protected buffers and the whole cache is destroyed when the pass ends; it
// is never shared across passes.
type FetchCache struct {
	entries map[string]*secure.Buffer
	failed  map[string]struct{}
}

// NewFetchCache creates an empty pass-scoped cache.
func NewFetchCache() *FetchCache {
	return &FetchCache{
		entries: make(map[string]*secure.Buffer),
		failed:  make(map[string]struct{}),
	}
}

func fetchKey(key string, kind credential.Kind) string {
	return key + "/" + string(kind)
}

// Get returns the cached credential for a fetch key and kind, or false.
func (c *FetchCache) Get(key string, kind credential.Kind) ([]byte, bool) {
	buf, ok := c.entries[fetchKey(key, kind)]
	if !ok {
		return nil, false
	}
	data, err := buf.Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores a fetched credential for the remainder of the pass.
func (c *FetchCache) Put(key string, kind credential.Kind, value []byte) {
	k := fetchKey(key, kind)
	if old, ok := c.entries[k]; ok {
		old.Destroy()
	}
	delete(c.failed, k)
	c.entries[k] = secure.NewBuffer(value)
}

// MarkFailed records that the vault could not supply this fetch key and
// kind, so later mappings in the pass skip the round-trip.
func (c *FetchCache) MarkFailed(key string, kind credential.Kind) {
	c.failed[fetchKey(key, kind)] = struct{}{}
}

// Failed reports whether a fetch for this key and kind already failed
// during the pass.
func (c *FetchCache) Failed(key string, kind credential.Kind) bool {
	_, ok := c.failed[fetchKey(key, kind)]
	return ok
}

// Len returns the number of cached credentials.
func (c *FetchCache) Len() int {
	return len(c.entries)
}

// Destroy wipes every entry. The cache must not be used afterward.
func (c *FetchCache) Destroy() {
	for k, buf := range c.entries {
		buf.Destroy()
		delete(c.entries, k)
	}
	for k := range c.failed {
		delete(c.failed, k)
	}
}
