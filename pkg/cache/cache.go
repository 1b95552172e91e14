package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// defaultNamespace prefixes every cache key.
	defaultNamespace = "trademem"
	// defaultTTL applies when a set carries no expiry.
	defaultTTL = time.Hour
	// defaultOpTimeout is the per-operation budget against a backend.
	defaultOpTimeout = 100 * time.Millisecond
	// defaultRecheckInterval spaces health probes while degraded.
	defaultRecheckInterval = 15 * time.Second
)

// Client is the cache tier used by the memory facade.
//
// Operations run against the external backend while it is healthy and
// against the in-process fallback otherwise. A failed external operation
// marks the tier degraded, retries once against the fallback, and the
// external backend is probed again at most once per recheck interval. The
// degraded transition is logged once, not per operation.
type Client struct {
	external Backend
	fallback Backend

	namespace       string
	defaultTTL      time.Duration
	opTimeout       time.Duration
	recheckInterval time.Duration
	logger          *slog.Logger

	mu            sync.Mutex
	degraded      bool
	degradedSince time.Time
	lastProbe     time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// Config contains configuration for creating the cache tier.
type Config struct {
	// External is the optional external backend. Nil means the tier runs
	// on the fallback alone, which is not a degraded state.
	External Backend
	// Fallback is the required in-process backend.
	Fallback Backend
	// Namespace prefixes every cache key. Defaults to "trademem".
	Namespace string
	// DefaultTTL applies to sets without an expiry. Defaults to 1h.
	DefaultTTL time.Duration
	// OpTimeout is the per-operation budget. Defaults to 100ms.
	OpTimeout time.Duration
	// RecheckInterval spaces health probes while degraded. Defaults to 15s.
	RecheckInterval time.Duration
	// Logger receives degraded and restored transitions.
	Logger *slog.Logger
}

// Stats is a snapshot of cache tier counters.
type Stats struct {
	// Hits is the number of reads served from a backend.
	Hits int64
	// Misses is the number of reads that found no value.
	Misses int64
	// Drops is the number of writes rejected or entries evicted under
	// capacity pressure.
	Drops int64
	// Backend is the name of the backend currently serving operations.
	Backend string
	// Degraded reports whether the external backend is out of service.
	Degraded bool
	// DegradedSince is the start of the current degraded window.
	DegradedSince time.Time
}

// New creates the cache tier.
//
// When an external backend is configured it is probed once; an unreachable
// backend leaves the tier running degraded on the fallback instead of
// failing construction.
func New(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Fallback == nil {
		return nil, fmt.Errorf("NewCache: fallback backend is required")
	}

	c := &Client{
		external:        cfg.External,
		fallback:        cfg.Fallback,
		namespace:       cfg.Namespace,
		defaultTTL:      cfg.DefaultTTL,
		opTimeout:       cfg.OpTimeout,
		recheckInterval: cfg.RecheckInterval,
		logger:          cfg.Logger,
	}
	if c.namespace == "" {
		c.namespace = defaultNamespace
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = defaultTTL
	}
	if c.opTimeout <= 0 {
		c.opTimeout = defaultOpTimeout
	}
	if c.recheckInterval <= 0 {
		c.recheckInterval = defaultRecheckInterval
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.external != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
		defer cancel()
		if err := c.external.Ping(ctx); err != nil {
			c.degraded = true
			c.degradedSince = time.Now()
			c.lastProbe = time.Now()
			c.logger.Warn("external cache unreachable, starting degraded",
				"backend", c.external.Name(), "error", err)
		}
	}

	return c, nil
}

// Set stores a value under the namespaced category and key. A non-positive
// ttl takes the tier default.
func (c *Client) Set(ctx context.Context, category, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	nsKey := c.cacheKey(category, key)

	backend := c.activeBackend()
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	err := backend.Set(opCtx, nsKey, value, ttl)
	cancel()
	if err == nil {
		return nil
	}

	if backend == c.external {
		c.setDegraded(err)
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		if err := c.fallback.Set(opCtx, nsKey, value, ttl); err == nil {
			return nil
		}
		return fmt.Errorf("Set: %w", ErrUnavailable)
	}

	return fmt.Errorf("Set: %w", err)
}

// Get returns the value stored under the namespaced category and key, or
// ErrMiss.
func (c *Client) Get(ctx context.Context, category, key string) ([]byte, error) {
	nsKey := c.cacheKey(category, key)

	backend := c.activeBackend()
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	value, err := backend.Get(opCtx, nsKey)
	cancel()

	switch {
	case err == nil:
		c.hits.Add(1)
		return value, nil
	case errors.Is(err, ErrMiss):
		c.misses.Add(1)
		return nil, err
	}

	if backend == c.external {
		c.setDegraded(err)
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		value, err = c.fallback.Get(opCtx, nsKey)
		if err == nil {
			c.hits.Add(1)
			return value, nil
		}
		if errors.Is(err, ErrMiss) {
			c.misses.Add(1)
			return nil, err
		}
	}

	return nil, fmt.Errorf("Get: %w", ErrUnavailable)
}

// Delete removes the namespaced category and key from every tier.
//
// An external delete failure only degrades the tier; the entry expires from
// the external backend by TTL.
func (c *Client) Delete(ctx context.Context, category, key string) error {
	nsKey := c.cacheKey(category, key)

	if c.external != nil && !c.Degraded() {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		if err := c.external.Delete(opCtx, nsKey); err != nil {
			c.setDegraded(err)
		}
		cancel()
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.fallback.Delete(opCtx, nsKey); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// Refresh probes the external backend immediately, ignoring the recheck
// interval, and updates the degraded state from the result.
func (c *Client) Refresh(ctx context.Context) error {
	if c.external == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	err := c.external.Ping(opCtx)
	if err != nil {
		c.setDegraded(err)
		return fmt.Errorf("Refresh: %w", err)
	}
	c.setRestored()
	return nil
}

// Degraded reports whether the external backend is out of service.
func (c *Client) Degraded() bool {
	if c.external == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Stats returns a snapshot of the tier counters.
func (c *Client) Stats() *Stats {
	drops := c.fallback.Drops()
	if c.external != nil {
		drops += c.external.Drops()
	}

	c.mu.Lock()
	degraded := c.degraded
	degradedSince := c.degradedSince
	c.mu.Unlock()

	backend := c.fallback.Name()
	if c.external != nil && !degraded {
		backend = c.external.Name()
	}

	return &Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Drops:         drops,
		Backend:       backend,
		Degraded:      degraded,
		DegradedSince: degradedSince,
	}
}

// Close releases both backends.
func (c *Client) Close() error {
	var firstErr error
	if c.external != nil {
		if err := c.external.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// cacheKey builds the namespaced key for a category and key.
func (c *Client) cacheKey(category, key string) string {
	return c.namespace + ":" + category + ":" + key
}

// activeBackend picks the backend for the next operation. While degraded it
// probes the external backend at most once per recheck interval.
func (c *Client) activeBackend() Backend {
	if c.external == nil {
		return c.fallback
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.degraded {
		return c.external
	}

	if time.Since(c.lastProbe) >= c.recheckInterval {
		c.lastProbe = time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
		err := c.external.Ping(ctx)
		cancel()
		if err == nil {
			c.degraded = false
			c.degradedSince = time.Time{}
			c.logger.Info("external cache restored", "backend", c.external.Name())
			return c.external
		}
	}

	return c.fallback
}

// setDegraded records a failed external operation. Only the transition is
// logged.
func (c *Client) setDegraded(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastProbe = time.Now()
	if c.degraded {
		return
	}
	c.degraded = true
	c.degradedSince = time.Now()
	c.logger.Warn("external cache unavailable, falling back to in-process cache",
		"backend", c.external.Name(), "error", err)
}

// setRestored records a successful probe of the external backend.
func (c *Client) setRestored() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastProbe = time.Now()
	if !c.degraded {
		return
	}
	c.degraded = false
	c.degradedSince = time.Time{}
	c.logger.Info("external cache restored", "backend", c.external.Name())
}
