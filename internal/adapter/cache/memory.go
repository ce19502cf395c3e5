// Package cache implements the semantic answer cache: a stored answer is
// reused when a new query embedding lies within a cosine distance threshold
// of the query it was produced for.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"ragctx/internal/adapter/vecmath"
	"ragctx/internal/domain"
)

// DefaultDistanceThreshold is the cosine distance under which two queries
// count as the same question.
const DefaultDistanceThreshold = 0.1

// MemoryCache is a process-local semantic cache with TTL expiry and
// oldest-first eviction.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]*cacheEntry
	order     []string
	maxSize   int
	ttl       time.Duration
	threshold float64
	now       func() time.Time
}

type cacheEntry struct {
	prompt    string
	response  string
	vector    []float32
	timestamp time.Time
}

func NewMemoryCache(maxSize int, ttl time.Duration, threshold float64) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	return &MemoryCache{
		entries:   make(map[string]*cacheEntry),
		order:     make([]string, 0, maxSize),
		maxSize:   maxSize,
		ttl:       ttl,
		threshold: threshold,
		now:       time.Now,
	}
}

func cacheKey(prompt string) string {
	hash := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(hash[:16])
}

// Lookup returns the closest live entry within the distance threshold.
func (c *MemoryCache) Lookup(ctx context.Context, vector []float32) (domain.CachedAnswer, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var best *cacheEntry
	bestDist := 0.0
	for key, entry := range c.entries {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.entries, key)
			c.removeFromOrder(key)
			continue
		}
		d := vecmath.CosineDistance(vector, entry.vector)
		if d <= c.threshold && (best == nil || d < bestDist) {
			best, bestDist = entry, d
		}
	}
	if best == nil {
		return domain.CachedAnswer{}, false, nil
	}

	return domain.CachedAnswer{
		Prompt:   best.prompt,
		Response: best.response,
		Distance: bestDist,
	}, true, nil
}

func (c *MemoryCache) Store(ctx context.Context, prompt string, vector []float32, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(prompt)
	entry := &cacheEntry{
		prompt:    prompt,
		response:  response,
		vector:    vector,
		timestamp: c.now(),
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return nil
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
	return nil
}

func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *MemoryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *MemoryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
