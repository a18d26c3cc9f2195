package cache

import (
	"context"
	"time"
)

// LayeredCache fronts a shared backend with an in-process LRU. Writes go
// through to the backend first; reads fill the local layer. The local TTL is
// kept short so other replicas' writes become visible.
type LayeredCache struct {
	local   *MemoryCache
	backend Service
	ttl     time.Duration
}

type LayeredOption func(*layeredConfig)

type layeredConfig struct {
	size int
	ttl  time.Duration
	now  func() time.Time
}

// WithLayeredMemorySize bounds the local layer.
func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *layeredConfig) { c.size = size }
}

// WithLayeredMemoryTTL bounds how long a value stays in the local layer.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *layeredConfig) { c.ttl = ttl }
}

// WithLayeredClock overrides the local layer's time source.
func WithLayeredClock(now func() time.Time) LayeredOption {
	return func(c *layeredConfig) { c.now = now }
}

func NewLayeredCache(backend Service, opts ...LayeredOption) *LayeredCache {
	cfg := layeredConfig{size: 1000, ttl: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		local:   NewMemoryCache(WithMemoryMaxSize(cfg.size), WithMemoryClock(cfg.now)),
		backend: backend,
		ttl:     cfg.ttl,
	}
}

func (c *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	if err := c.backend.Set(ctx, key, raw, expiration); err != nil {
		_ = c.local.Delete(ctx, key)
		return err
	}
	return c.local.Set(ctx, key, raw, c.localTTL(expiration))
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var raw string
	if err := c.local.Get(ctx, key, &raw); err == nil {
		return decode(raw, dest)
	}
	if err := c.backend.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = c.local.Set(ctx, key, raw, c.ttl)
	return decode(raw, dest)
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.local.Delete(ctx, keys...)
	return c.backend.Delete(ctx, keys...)
}

func (c *LayeredCache) Close() error {
	_ = c.local.Close()
	return c.backend.Close()
}

func (c *LayeredCache) localTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < c.ttl {
		return expiration
	}
	return c.ttl
}
