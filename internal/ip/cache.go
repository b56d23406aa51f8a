package ip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache is a read-through cache for object summaries. Implementations
// must treat a miss as (nil, false, nil), not an error.
type SummaryCache interface {
	Get(ctx context.Context, objectHash string) (*Summary, bool, error)
	Set(ctx context.Context, summary *Summary) error
	Invalidate(ctx context.Context, objectHashes ...string) error
}

// DefaultSummaryTTL bounds how stale a cached summary can get when an
// invalidation is missed (e.g. a writer crashed between write and purge).
const DefaultSummaryTTL = 5 * time.Minute

// RedisSummaryCache caches summaries in Redis as JSON with a TTL.
type RedisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSummaryCache creates a summary cache over the given client. A
// non-positive ttl falls back to DefaultSummaryTTL.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &RedisSummaryCache{client: client, ttl: ttl}
}

func summaryKey(objectHash string) string {
	return "ip:summary:" + objectHash
}

// Get returns the cached summary for an object, if present.
func (c *RedisSummaryCache) Get(ctx context.Context, objectHash string) (*Summary, bool, error) {
	data, err := c.client.Get(ctx, summaryKey(objectHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached summary: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt entry is treated as a miss; the read path will
		// rebuild and overwrite it.
		return nil, false, nil
	}
	return &s, true, nil
}

// Set stores a summary under its object hash.
func (c *RedisSummaryCache) Set(ctx context.Context, summary *Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := c.client.Set(ctx, summaryKey(summary.ObjectHash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching summary: %w", err)
	}
	return nil
}

// Invalidate drops the cached summaries for the given objects.
func (c *RedisSummaryCache) Invalidate(ctx context.Context, objectHashes ...string) error {
	if len(objectHashes) == 0 {
		return nil
	}
	keys := make([]string, len(objectHashes))
	for i, hash := range objectHashes {
		keys[i] = summaryKey(hash)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidating summaries: %w", err)
	}
	return nil
}
