package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMemoryMaxSize = 10000

type memoryItem struct {
	key       string
	value     string
	expiresAt time.Time // zero never expires
}

func (it *memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// MemoryCache is an in-process LRU implementing Service. Expired items are
// dropped lazily on access and by the least-recently-used eviction.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front is most recently used
	maxSize int
	now     func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of keys; zero or less is unbounded.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryCache) { c.maxSize = size }
}

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items:   make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMemoryMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = c.now().Add(expiration)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		it := el.Value.(*memoryItem)
		it.value = raw
		it.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return nil
	}
	c.items[key] = c.order.PushFront(&memoryItem{key: key, value: raw, expiresAt: expiresAt})
	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return ErrCacheMiss
	}
	it := el.Value.(*memoryItem)
	if it.expired(c.now()) {
		c.remove(el)
		c.mu.Unlock()
		return ErrCacheMiss
	}
	c.order.MoveToFront(el)
	raw := it.value
	c.mu.Unlock()

	return decode(raw, dest)
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.remove(el)
		}
	}
	return nil
}

// Len reports stored keys, including expired ones not yet dropped.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// remove must be called with mu held.
func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*memoryItem).key)
}
