package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client caches JSON snapshots in Redis. A nil Client is valid and caches
// nothing, so callers never branch on whether caching is enabled.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to the Redis instance at addr. An empty addr disables
// caching and returns nil.
func New(addr string, ttl time.Duration) *Client {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	return &Client{rdb: rdb, ttl: ttl}
}

// Get loads the value stored under key into dest. It reports whether the
// key was present and decoded cleanly.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// Set stores value under key for the configured TTL. Errors are dropped;
// the cache is advisory and the database stays the source of truth.
func (c *Client) Set(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, key, raw, c.ttl)
}

// Invalidate removes keys after a write so the next read refills them.
func (c *Client) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	c.rdb.Del(ctx, keys...)
}

// Close tears down the connection pool. Safe on a nil Client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
