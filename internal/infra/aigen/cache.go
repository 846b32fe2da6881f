package aigen

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/questforge/questforge/internal/domain"
	"github.com/questforge/questforge/internal/infra/metrics"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 10 * time.Minute
)

type cacheEntry struct {
	text     string
	storedAt time.Time
}

// CachedGenerator wraps a generator with an LRU cache keyed by the full
// prompt. Entries older than the TTL are treated as misses. Errors are never cached.
type CachedGenerator struct {
	delegate domain.TextGenerator
	cache    *lru.Cache[string, cacheEntry]
	ttl      time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// NewCachedGenerator wraps delegate. Non-positive size or ttl use defaults.
func NewCachedGenerator(delegate domain.TextGenerator, size int, ttl time.Duration) *CachedGenerator {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// lru.New only errors on non-positive size, guarded above.
	cache, _ := lru.New[string, cacheEntry](size)
	return &CachedGenerator{delegate: delegate, cache: cache, ttl: ttl, now: time.Now}
}

// Generate returns a fresh cached reply or calls the delegate.
func (c *CachedGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	key := req.System + "\x00" + req.Prompt

	if entry, ok := c.cache.Get(key); ok {
		if c.clock().Sub(entry.storedAt) < c.ttl {
			metrics.AICacheHits.Inc()
			return entry.text, nil
		}
		c.cache.Remove(key)
	}

	text, err := c.delegate.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, cacheEntry{text: text, storedAt: c.clock()})
	return text, nil
}

// Len returns the number of cached replies.
func (c *CachedGenerator) Len() int {
	return c.cache.Len()
}

func (c *CachedGenerator) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *CachedGenerator) setClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}
