package toolregistry

import "sync"

// Cache is a single-writer, many-reader cache of the flat prefixed tool
// list, with a strictly monotonic version counter (invariant: version is
// non-decreasing across Set/Invalidate, and every mutation increments it).
//
// Grounded on block/goose's ToolRegistry (tools_cache: Mutex<Option<Arc<Vec<Tool>>>>,
// cache_version: AtomicU64).
type Cache struct {
	mu      sync.Mutex
	tools   []Tool
	valid   bool
	version uint64
}

// NewCache constructs an empty, invalidated cache.
func NewCache() *Cache { return &Cache{} }

// Get returns the cached tools and whether the cache is currently valid.
// Consumers must call Get on every access rather than retaining the slice
// across a suspension point, since a concurrent Set/Invalidate can occur.
func (c *Cache) Get() ([]Tool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid {
		return nil, false
	}
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out, true
}

// Set installs a freshly fetched tool list and bumps the version.
func (c *Cache) Set(tools []Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append([]Tool(nil), tools...)
	c.valid = true
	c.version++
}

// Invalidate marks the cache empty and bumps the version. Triggered by a
// local add/remove, an upstream tools-list-changed notification, or agent
// teardown.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = nil
	c.valid = false
	c.version++
}

// Version returns the current cache version for change detection.
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}
