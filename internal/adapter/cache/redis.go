package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"ragctx/internal/adapter/vecmath"
	"ragctx/internal/domain"
)

// RedisCache stores one hash per answered prompt under prefix, with the
// query embedding as little-endian float32 bytes. Entries expire via EXPIRE.
type RedisCache struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	threshold float64
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, threshold float64) *RedisCache {
	if prefix == "" {
		prefix = "answercache"
	}
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	return &RedisCache{
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		threshold: threshold,
	}
}

func (c *RedisCache) key(prompt string) string {
	return c.prefix + ":" + cacheKey(prompt)
}

func (c *RedisCache) Lookup(ctx context.Context, vector []float32) (domain.CachedAnswer, bool, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return domain.CachedAnswer{}, false, fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return domain.CachedAnswer{}, false, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGet(ctx, k, "embedding")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.CachedAnswer{}, false, fmt.Errorf("redis load embeddings: %w", err)
	}

	bestKey := ""
	bestDist := 0.0
	for i, cmd := range cmds {
		blob, err := cmd.Bytes()
		if err != nil {
			continue // expired between scan and read
		}
		vec, err := vecmath.Decode(blob)
		if err != nil {
			continue
		}
		d := vecmath.CosineDistance(vector, vec)
		if d <= c.threshold && (bestKey == "" || d < bestDist) {
			bestKey, bestDist = keys[i], d
		}
	}
	if bestKey == "" {
		return domain.CachedAnswer{}, false, nil
	}

	fields, err := c.client.HMGet(ctx, bestKey, "prompt", "response").Result()
	if err != nil {
		return domain.CachedAnswer{}, false, fmt.Errorf("redis load answer: %w", err)
	}
	prompt, _ := fields[0].(string)
	response, ok := fields[1].(string)
	if !ok {
		return domain.CachedAnswer{}, false, nil
	}
	return domain.CachedAnswer{Prompt: prompt, Response: response, Distance: bestDist}, true, nil
}

func (c *RedisCache) Store(ctx context.Context, prompt string, vector []float32, response string) error {
	key := c.key(prompt)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"prompt", prompt,
			"response", response,
			"embedding", vecmath.Encode(vector),
		)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store answer: %w", err)
	}
	return nil
}

// Invalidate deletes every key under the cache prefix.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}
