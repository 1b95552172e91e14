package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainautilus/trademem-go/pkg/cache"
)

// stubBackend is a controllable in-memory cache.Backend. Setting down makes
// every operation fail the way an unreachable external service would.
type stubBackend struct {
	mu      sync.Mutex
	name    string
	data    map[string][]byte
	down    bool
	lastTTL time.Duration
}

func newStubBackend(name string) *stubBackend {
	return &stubBackend{
		name: name,
		data: make(map[string][]byte),
	}
}

func (s *stubBackend) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *stubBackend) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *stubBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("connection refused")
	}
	s.data[key] = value
	s.lastTTL = ttl
	return nil
}

func (s *stubBackend) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errors.New("connection refused")
	}
	value, ok := s.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (s *stubBackend) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("connection refused")
	}
	delete(s.data, key)
	return nil
}

func (s *stubBackend) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("connection refused")
	}
	return nil
}

func (s *stubBackend) Drops() int64 { return 0 }

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Close() error { return nil }

func TestCache_RequiresFallback(t *testing.T) {
	_, err := cache.New(nil)
	assert.Error(t, err)

	_, err = cache.New(&cache.Config{})
	assert.Error(t, err)
}

func TestCache_FallbackOnly(t *testing.T) {
	fallback := newStubBackend("memory")

	client, err := cache.New(&cache.Config{Fallback: fallback})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	err = client.Set(ctx, "market_data", "EURUSD:bar:1", []byte("value"), time.Minute)
	assert.NoError(t, err)

	// Keys are namespaced category paths
	assert.True(t, fallback.has("trademem:market_data:EURUSD:bar:1"))

	value, err := client.Get(ctx, "market_data", "EURUSD:bar:1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	_, err = client.Get(ctx, "market_data", "missing")
	assert.True(t, errors.Is(err, cache.ErrMiss))

	// Running on the fallback without an external backend is not degraded
	assert.False(t, client.Degraded())

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "memory", stats.Backend)
}

func TestCache_ExternalPreferred(t *testing.T) {
	external := newStubBackend("redis")
	fallback := newStubBackend("memory")

	client, err := cache.New(&cache.Config{
		External:   external,
		Fallback:   fallback,
		DefaultTTL: 30 * time.Minute,
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	// A set without a TTL takes the tier default
	err = client.Set(ctx, "market_data", "EURUSD:bar:1", []byte("value"), 0)
	assert.NoError(t, err)
	assert.True(t, external.has("trademem:market_data:EURUSD:bar:1"))
	assert.False(t, fallback.has("trademem:market_data:EURUSD:bar:1"))
	assert.Equal(t, 30*time.Minute, external.lastTTL)

	value, err := client.Get(ctx, "market_data", "EURUSD:bar:1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	assert.False(t, client.Degraded())
	assert.Equal(t, "redis", client.Stats().Backend)
}

func TestCache_DegradedOnFailure(t *testing.T) {
	external := newStubBackend("redis")
	fallback := newStubBackend("memory")

	client, err := cache.New(&cache.Config{
		External:        external,
		Fallback:        fallback,
		RecheckInterval: time.Hour,
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	external.setDown(true)

	// The failed external set is retried once against the fallback
	err = client.Set(ctx, "market_data", "EURUSD:bar:1", []byte("value"), time.Minute)
	assert.NoError(t, err)
	assert.True(t, client.Degraded())
	assert.True(t, fallback.has("trademem:market_data:EURUSD:bar:1"))

	value, err := client.Get(ctx, "market_data", "EURUSD:bar:1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	stats := client.Stats()
	assert.True(t, stats.Degraded)
	assert.False(t, stats.DegradedSince.IsZero())
	assert.Equal(t, "memory", stats.Backend)
}

func TestCache_StartupDegraded(t *testing.T) {
	external := newStubBackend("redis")
	external.setDown(true)
	fallback := newStubBackend("memory")

	// An unreachable external backend must not fail construction
	client, err := cache.New(&cache.Config{
		External:        external,
		Fallback:        fallback,
		RecheckInterval: time.Hour,
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	assert.True(t, client.Degraded())

	err = client.Set(ctx, "system_state", "engine", []byte("running"), time.Minute)
	assert.NoError(t, err)

	value, err := client.Get(ctx, "system_state", "engine")
	assert.NoError(t, err)
	assert.Equal(t, []byte("running"), value)
}

func TestCache_RefreshRestores(t *testing.T) {
	external := newStubBackend("redis")
	fallback := newStubBackend("memory")

	client, err := cache.New(&cache.Config{
		External:        external,
		Fallback:        fallback,
		RecheckInterval: time.Hour,
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	external.setDown(true)
	_ = client.Set(ctx, "system_state", "engine", []byte("running"), time.Minute)
	require.True(t, client.Degraded())

	// Refresh probes immediately, ignoring the recheck interval
	external.setDown(false)
	err = client.Refresh(ctx)
	assert.NoError(t, err)
	assert.False(t, client.Degraded())

	// Subsequent writes reach the external backend again
	err = client.Set(ctx, "system_state", "engine", []byte("stopped"), time.Minute)
	assert.NoError(t, err)
	assert.True(t, external.has("trademem:system_state:engine"))
}

func TestCache_RecheckRestores(t *testing.T) {
	external := newStubBackend("redis")
	fallback := newStubBackend("memory")

	client, err := cache.New(&cache.Config{
		External:        external,
		Fallback:        fallback,
		RecheckInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	external.setDown(true)
	_ = client.Set(ctx, "system_state", "engine", []byte("running"), time.Minute)
	require.True(t, client.Degraded())

	external.setDown(false)
	time.Sleep(50 * time.Millisecond)

	// The next operation probes the external backend and restores it
	err = client.Set(ctx, "system_state", "engine", []byte("stopped"), time.Minute)
	assert.NoError(t, err)
	assert.False(t, client.Degraded())
	assert.True(t, external.has("trademem:system_state:engine"))
}

func TestCache_DeleteRemovesFallbackCopy(t *testing.T) {
	external := newStubBackend("redis")
	fallback := newStubBackend("memory")

	client, err := cache.New(&cache.Config{
		External:        external,
		Fallback:        fallback,
		RecheckInterval: time.Hour,
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx := context.Background()

	// Strand a copy in the fallback during a degraded window
	external.setDown(true)
	require.NoError(t, client.Set(ctx, "market_data", "EURUSD:tick:1", []byte("stale"), time.Minute))

	external.setDown(false)
	require.NoError(t, client.Refresh(ctx))

	// Delete reaches both tiers so the stranded copy cannot resurface
	err = client.Delete(ctx, "market_data", "EURUSD:tick:1")
	assert.NoError(t, err)
	assert.False(t, fallback.has("trademem:market_data:EURUSD:tick:1"))
	assert.False(t, external.has("trademem:market_data:EURUSD:tick:1"))
}
