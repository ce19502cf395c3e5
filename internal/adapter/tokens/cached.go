package tokens

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"ragctx/internal/port"
)

// Texts longer than this are keyed by digest instead of by value.
const maxInlineKey = 256

// CachedCounter memoizes counts of an underlying counter in an LRU.
// Errors are not cached.
type CachedCounter struct {
	inner port.TokenCounter
	cache *lru.Cache[string, int]
}

func NewCachedCounter(inner port.TokenCounter, size int) (*CachedCounter, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	return &CachedCounter{inner: inner, cache: cache}, nil
}

func (c *CachedCounter) CountTokens(text string) (int, error) {
	key := cacheKey(text)
	if n, ok := c.cache.Get(key); ok {
		return n, nil
	}
	n, err := c.inner.CountTokens(text)
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, n)
	return n, nil
}

// Len returns the number of cached entries.
func (c *CachedCounter) Len() int {
	return c.cache.Len()
}

func cacheKey(text string) string {
	if len(text) <= maxInlineKey {
		return "t:" + text
	}
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("h:%x", sum)
}
