package chatsync

import (
	"context"
	"fmt"
	"sync"
)

// HashEntry is a cached content hash and the fingerprint it was computed
// from.
type HashEntry struct {
	Hash string `json:"hash"`
	Fingerprint
}

// ContentReader loads the full content of the item m describes.
type ContentReader func(ctx context.Context, m Metadata) ([]byte, error)

// HashCache maps item identity to its last computed content hash. A
// cached hash is trusted only while the item's fingerprint matches.
// Lookups for the same identity are serialized; different identities
// proceed in parallel.
type HashCache struct {
	mu      sync.Mutex
	entries map[string]HashEntry
	dirty   map[string]struct{}
	locks   map[string]*sync.Mutex
}

// NewHashCache returns a cache seeded with previously persisted entries.
func NewHashCache(entries map[string]HashEntry) *HashCache {
	c := &HashCache{
		entries: make(map[string]HashEntry, len(entries)),
		dirty:   make(map[string]struct{}),
		locks:   make(map[string]*sync.Mutex),
	}

	for id, e := range entries {
		c.entries[id] = e
	}

	return c
}

func (c *HashCache) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}

	return l
}

// GetOrCompute returns the hash for m. When the cached fingerprint
// matches m exactly the cached hash is returned with wasRead false;
// otherwise the content is read, hashed and cached, and wasRead is true.
func (c *HashCache) GetOrCompute(ctx context.Context, m Metadata, read ContentReader) (hash string, wasRead bool, err error) {
	l := c.lockFor(m.ID)
	l.Lock()
	defer l.Unlock()

	if e, ok := c.Get(m.ID); ok && e.Fingerprint == m.Fingerprint() {
		return e.Hash, false, nil
	}

	content, err := read(ctx, m)
	if err != nil {
		return "", true, fmt.Errorf("reading %s for hashing: %w", m.ID, err)
	}

	hash = HashContent(content)
	c.Put(m.ID, HashEntry{Hash: hash, Fingerprint: m.Fingerprint()})

	return hash, true, nil
}

// Get returns the cached entry for id.
func (c *HashCache) Get(id string) (HashEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]

	return e, ok
}

// Put stores an entry and marks it for persistence.
func (c *HashCache) Put(id string, e HashEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = e
	c.dirty[id] = struct{}{}
}

// Len returns the number of cached entries.
func (c *HashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// TakeDirty returns the entries changed since the last call and clears
// the dirty set.
func (c *HashCache) TakeDirty() map[string]HashEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]HashEntry, len(c.dirty))
	for id := range c.dirty {
		out[id] = c.entries[id]
	}

	c.dirty = make(map[string]struct{})

	return out
}

// Clear drops every entry.
func (c *HashCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]HashEntry)
	c.dirty = make(map[string]struct{})
	c.locks = make(map[string]*sync.Mutex)
}
