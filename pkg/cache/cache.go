package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/harun/hybridsolver/internal/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxSize = 100
	DefaultTTL     = time.Hour
)

// Options configures a Cache.
type Options struct {
	MaxSize    int
	DefaultTTL time.Duration
	// Now overrides the clock; tests use it to expire entries.
	Now    func() time.Time
	Logger zerolog.Logger
}

// Stats is a snapshot taken after expired entries are dropped.
type Stats struct {
	Size      int           `json:"size"`
	MaxSize   int           `json:"max_size"`
	OldestAge time.Duration `json:"oldest_age"`
	NewestAge time.Duration `json:"newest_age"`
}

type entry struct {
	key       string
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a bounded in-memory store with per-entry TTL and LRU eviction.
// Expired entries are dropped lazily by Get, Set and Stats.
type Cache struct {
	mu    sync.Mutex
	order *list.List // front is most recently used
	items map[string]*list.Element

	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	loads singleflight.Group
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	observability.EnsureRegistered()

	return &Cache{
		order:      list.New(),
		items:      make(map[string]*list.Element),
		maxSize:    opts.MaxSize,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		logger:     opts.Logger.With().Str("component", "cache").Logger(),
	}
}

// removeExpired drops every entry whose expiry has passed. Callers hold mu.
func (c *Cache) removeExpired(now time.Time) {
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*entry); !now.Before(e.expiresAt) {
			c.order.Remove(el)
			delete(c.items, e.key)
		}
		el = next
	}
}

// Get returns the live value for d and marks it most recently used.
func (c *Cache) Get(d Descriptor) (any, bool) {
	key := d.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeExpired(c.now())
	el, ok := c.items[key]
	observability.RecordCacheLookup(ok)
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Set stores value under d with the default TTL.
func (c *Cache) Set(d Descriptor, value any) {
	c.SetWithTTL(d, value, 0)
}

// SetWithTTL stores value under d for ttl; ttl <= 0 uses the default.
// Overwriting resets the entry's timestamps. Inserting a new key at capacity
// evicts the least recently used entry first.
func (c *Cache) SetWithTTL(d Descriptor, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	key := d.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.removeExpired(now)

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	} else if len(c.items) >= c.maxSize {
		c.evictLocked()
	}

	c.items[key] = c.order.PushFront(&entry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	})
	observability.SetCacheSize(len(c.items))
}

func (c *Cache) evictLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, e.key)
	observability.RecordCacheEviction()
	c.logger.Debug().Str("key", e.key).Msg("Evicted least recently used entry")
}

// Delete removes d and reports whether it was present.
func (c *Cache) Delete(d Descriptor) bool {
	key := d.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	observability.SetCacheSize(len(c.items))
	return true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	observability.SetCacheSize(0)
}

// Len returns the number of stored entries, including any not yet cleaned up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns size, capacity and entry ages after dropping expired entries.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.removeExpired(now)

	s := Stats{Size: len(c.items), MaxSize: c.maxSize}
	if len(c.items) == 0 {
		return s
	}

	var oldest, newest time.Time
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if oldest.IsZero() || e.createdAt.Before(oldest) {
			oldest = e.createdAt
		}
		if newest.IsZero() || e.createdAt.After(newest) {
			newest = e.createdAt
		}
	}
	s.OldestAge = now.Sub(oldest)
	s.NewestAge = now.Sub(newest)
	return s
}

// Loader produces a value for a cache miss.
type Loader func(ctx context.Context) (any, error)

// GetOrLoad returns the cached value for d, or calls load once for all
// concurrent callers missing the same key and caches its result for ttl.
// Errors are returned to every waiting caller and are not cached. The bool
// reports whether the value came from the cache.
func (c *Cache) GetOrLoad(ctx context.Context, d Descriptor, ttl time.Duration, load Loader) (any, bool, error) {
	if v, ok := c.Get(d); ok {
		return v, true, nil
	}

	v, err, _ := c.loads.Do(d.Key(), func() (any, error) {
		if v, ok := c.Get(d); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.SetWithTTL(d, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}
