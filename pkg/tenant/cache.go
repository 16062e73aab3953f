package tenant

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache holds resolved tenants between requests.
type Cache interface {
	Get(id uuid.UUID) (*Tenant, bool)
	Set(id uuid.UUID, t *Tenant, ttl time.Duration)
	Delete(id uuid.UUID)
}

// DefaultCacheSize is the default maximum number of items in the cache.
const DefaultCacheSize = 1000

// InMemoryCache is a size bounded LRU with per entry expiry. Expired entries
// are dropped when read.
type InMemoryCache struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time
}

type cacheItem struct {
	tenant    *Tenant
	expiresAt time.Time
}

type cacheEntry struct {
	id uuid.UUID
	cacheItem
}

func NewInMemoryCache(maxSize int) *InMemoryCache {
	return NewInMemoryCacheWithClock(maxSize, time.Now)
}

// NewInMemoryCacheWithClock is NewInMemoryCache with an injectable clock.
func NewInMemoryCacheWithClock(maxSize int, now func() time.Time) *InMemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	if now == nil {
		now = time.Now
	}
	return &InMemoryCache{
		items:   make(map[uuid.UUID]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		now:     now,
	}
}

func (c *InMemoryCache) Get(id uuid.UUID) (*Tenant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, id)
		return nil, false
	}
	c.order.MoveToBack(el)
	return entry.tenant, true
}

func (c *InMemoryCache) Set(id uuid.UUID, t *Tenant, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := cacheItem{tenant: t, expiresAt: c.now().Add(ttl)}
	if el, ok := c.items[id]; ok {
		el.Value.(*cacheEntry).cacheItem = item
		c.order.MoveToBack(el)
		return
	}
	if c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).id)
	}
	c.items[id] = c.order.PushBack(&cacheEntry{id: id, cacheItem: item})
}

func (c *InMemoryCache) Delete(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
	}
}

// Len reports the number of cached entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

type noOpCache struct{}

// NewNoOpCache returns a cache that never stores anything.
func NewNoOpCache() Cache { return noOpCache{} }

func (noOpCache) Get(uuid.UUID) (*Tenant, bool)         { return nil, false }
func (noOpCache) Set(uuid.UUID, *Tenant, time.Duration) {}
func (noOpCache) Delete(uuid.UUID)                      {}
