package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type cacheEntry struct {
	info    SourceInfo
	expires time.Time
}

// CachingResolver wraps another SourceResolver with a TTL-based in-memory
// cache so resubmitting the same link does not hit the upstream host twice.
type CachingResolver struct {
	base SourceResolver
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingResolver returns a SourceResolver that caches lookups for the provided TTL.
func NewCachingResolver(base SourceResolver, ttl time.Duration) *CachingResolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingResolver{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// Resolve returns cached metadata when available, otherwise it delegates to
// the underlying resolver and stores the result.
func (c *CachingResolver) Resolve(ctx context.Context, link string) (SourceInfo, error) {
	if c == nil || c.base == nil {
		return SourceInfo{}, fmt.Errorf("%w: resolver not configured", ErrSourceUnavailable)
	}

	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[link]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.info, nil
	}

	info, err := c.base.Resolve(ctx, link)
	if err != nil {
		return SourceInfo{}, err
	}

	c.mu.Lock()
	c.items[link] = cacheEntry{info: info, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return info, nil
}
