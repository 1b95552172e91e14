// Package redis provides the external cache backend.
//
// Connections are lazy, so constructing the client never fails on an
// unreachable server; reachability is the cache tier's concern, checked
// through Ping. This keeps startup alive when Redis is down and lets the
// tier begin in degraded mode instead.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ainautilus/trademem-go/pkg/cache"
)

// Client implements cache.Backend against a Redis server.
type Client struct {
	rdb *goredis.Client
}

// Config contains configuration for creating a Redis cache backend.
type Config struct {
	// Addr is the Redis server address as host:port.
	Addr string
	// Password is the Redis password, empty when authentication is off.
	Password string
	// DB is the Redis database number.
	DB int
}

// NewClient creates a new Redis cache backend.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("NewRedisClient: addr is required")
	}

	// One best-effort retry per operation; beyond that the tier falls back.
	rdb := goredis.NewClient(&goredis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 1,
	})

	return &Client{rdb: rdb}, nil
}

// Set stores a value under key. A non-positive ttl means no expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("Set: %w", err)
	}
	return nil
}

// Get returns the value stored under key, or cache.ErrMiss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return value, nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Ping: %w", err)
	}
	return nil
}

// Drops always returns zero; the server manages its own eviction.
func (c *Client) Drops() int64 {
	return 0
}

// Name identifies the backend in logs and stats.
func (c *Client) Name() string {
	return "redis"
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
