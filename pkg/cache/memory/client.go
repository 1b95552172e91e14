// Package memory provides the in-process cache backend.
//
// It wraps ristretto, a concurrent admission-controlled cache, with every
// entry costed at 1 so MaxEntries bounds the entry count directly. It backs
// the cache tier when no external backend is configured and absorbs traffic
// whenever the external backend is degraded.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/ainautilus/trademem-go/pkg/cache"
)

// defaultMaxEntries bounds the cache when no capacity is configured.
const defaultMaxEntries = 10000

// Client implements cache.Backend with an in-process ristretto cache.
type Client struct {
	cache *ristretto.Cache

	// rejected counts sets refused by the admission policy.
	rejected atomic.Int64
}

// Config contains configuration for creating an in-process cache.
type Config struct {
	// MaxEntries bounds the number of cached entries. Defaults to 10000.
	MaxEntries int
}

// NewClient creates a new in-process cache backend.
func NewClient(cfg *Config) (*Client, error) {
	maxEntries := defaultMaxEntries
	if cfg != nil && cfg.MaxEntries > 0 {
		maxEntries = cfg.MaxEntries
	}

	// Ten counters per entry is the ristretto sizing guideline.
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("NewMemoryCache: %w", err)
	}

	return &Client{cache: rc}, nil
}

// Set stores a value under key.
//
// A set refused by the admission policy counts as a drop, not an error.
// Wait makes the write visible to an immediately following Get.
func (c *Client) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var stored bool
	if ttl > 0 {
		stored = c.cache.SetWithTTL(key, value, 1, ttl)
	} else {
		stored = c.cache.Set(key, value, 1)
	}
	if !stored {
		c.rejected.Add(1)
		return nil
	}
	c.cache.Wait()
	return nil
}

// Get returns the value stored under key, or cache.ErrMiss.
func (c *Client) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := c.cache.Get(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("Get: unexpected value type %T", value)
	}
	return data, nil
}

// Delete removes key.
func (c *Client) Delete(_ context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

// Ping always succeeds for the in-process backend.
func (c *Client) Ping(_ context.Context) error {
	return nil
}

// Drops returns rejected sets plus entries evicted under capacity pressure.
func (c *Client) Drops() int64 {
	return c.rejected.Load() + int64(c.cache.Metrics.KeysEvicted())
}

// Name identifies the backend in logs and stats.
func (c *Client) Name() string {
	return "memory"
}

// Close releases the underlying cache.
func (c *Client) Close() error {
	c.cache.Close()
	return nil
}
