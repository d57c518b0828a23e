package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// TagCache stores JSON-encoded response payloads in redis under structured
// tags. Read endpoints populate it; mutations invalidate exactly the tags
// they affect.
type TagCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewTagCache(client *redisv9.Client, ttl time.Duration) *TagCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &TagCache{
		client: client,
		ttl:    ttl,
	}
}

// Get unmarshals the cached payload for tag into dest. The boolean reports
// whether the tag was present.
func (c *TagCache) Get(ctx context.Context, tag Tag, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, tag.String()).Result()
	if err == redisv9.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s failed: %w", tag, err)
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshal cached %s failed: %w", tag, err)
	}
	return true, nil
}

func (c *TagCache) Set(ctx context.Context, tag Tag, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache %s failed: %w", tag, err)
	}
	if err := c.client.Set(ctx, tag.String(), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", tag, err)
	}
	return nil
}

func (c *TagCache) Invalidate(ctx context.Context, tags ...Tag) error {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = tag.String()
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate tags failed: %w", err)
	}
	return nil
}

// InvalidateScope removes every tag sharing a base and scope, regardless of
// query hash. Used to drop all cached search pages for one user at once.
func (c *TagCache) InvalidateScope(ctx context.Context, base, scope string) error {
	pattern := Tag{Base: base, Scope: scope}.String() + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s failed: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate scope failed: %w", err)
	}
	return nil
}
