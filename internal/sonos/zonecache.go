package sonos

import (
	"sync"
	"time"

	"github.com/strefethen/sonos-dial-go/internal/sonos/xmldoc"
)

// DefaultZoneCacheTTL bounds how long a fetched topology document is reused.
const DefaultZoneCacheTTL = 30 * time.Second

// ZoneGroupCache caches the raw zone group topology document with a TTL.
type ZoneGroupCache struct {
	mu        sync.RWMutex
	doc       *xmldoc.Node
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

// NewZoneGroupCache creates a new cache with the specified TTL.
func NewZoneGroupCache(ttl time.Duration) *ZoneGroupCache {
	if ttl <= 0 {
		ttl = DefaultZoneCacheTTL
	}
	return &ZoneGroupCache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached document if it exists and is still fresh.
// Returns nil if cache is empty or expired.
func (c *ZoneGroupCache) Get() *xmldoc.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.doc == nil {
		return nil
	}

	if c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil
	}

	return c.doc
}

// Set stores the document in the cache.
func (c *ZoneGroupCache) Set(doc *xmldoc.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc = doc
	c.fetchedAt = c.now()
}

// Invalidate clears the cache.
func (c *ZoneGroupCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc = nil
	c.fetchedAt = time.Time{}
}

// GetOrFetch returns cached state if fresh, otherwise calls the fetcher function.
func (c *ZoneGroupCache) GetOrFetch(fetcher func() (*xmldoc.Node, error)) (*xmldoc.Node, error) {
	if doc := c.Get(); doc != nil {
		return doc, nil
	}

	doc, err := fetcher()
	if err != nil {
		return nil, err
	}

	c.Set(doc)
	return doc, nil
}

// FetchedAt returns when the cached document was stored, zero if empty.
func (c *ZoneGroupCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}
