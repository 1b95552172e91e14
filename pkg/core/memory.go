package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ainautilus/trademem-go/pkg/bus"
	"github.com/ainautilus/trademem-go/pkg/cache"
	cacheMemory "github.com/ainautilus/trademem-go/pkg/cache/memory"
	cacheRedis "github.com/ainautilus/trademem-go/pkg/cache/redis"
	"github.com/ainautilus/trademem-go/pkg/storage"
	mysqlStore "github.com/ainautilus/trademem-go/pkg/storage/mysql"
	postgresStore "github.com/ainautilus/trademem-go/pkg/storage/postgres"
	sqliteStore "github.com/ainautilus/trademem-go/pkg/storage/sqlite"
)

// Client is the unified memory facade shared by the decision and execution
// subsystems.
//
// It routes writes per entry policy across the volatile cache and the
// durable store, serves reads cache-first with a durable fallback, and
// carries the event bus connecting the two subsystems. The durable copy is
// always authoritative; the cache is a possibly-stale accelerator.
//
// The client is safe for concurrent use from multiple goroutines. Construct
// one per process and share it by reference.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	result, _ := client.Write(ctx, &core.Entry{
//	    Category:   core.CategoryMarketData,
//	    Key:        "EURUSD:bar:1",
//	    Payload:    map[string]interface{}{"close": 1.0832},
//	    Source:     core.SourceTrading,
//	    MemoryType: core.MemoryTypeBoth,
//	})
type Client struct {
	// config contains the client configuration.
	config *Config

	// store is the durable, authoritative tier.
	store storage.Store

	// cache is the volatile tier with its in-process fallback.
	cache *cache.Client

	// bus dispatches events between the subsystems.
	bus *bus.Bus

	// logger receives degraded-mode and sweep diagnostics.
	logger *slog.Logger

	// retention is the precomputed sweep policy.
	retention *storage.RetentionPolicy

	// startedAt anchors the uptime stat.
	startedAt time.Time

	// writes and reads count facade operations.
	writes atomic.Int64
	reads  atomic.Int64

	// mu protects the closed flag.
	mu     sync.RWMutex
	closed bool

	// sweepStop stops the background sweeper.
	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// NewClient creates a new memory client.
//
// The client is initialized with:
//   - Durable store (SQLite, PostgreSQL, or MySQL)
//   - Cache tier (optional Redis backend plus in-process fallback)
//   - Event bus writing its audit trail to the store
//   - Background retention sweeper
//
// An unreachable Redis backend does not fail construction; the cache tier
// starts degraded on the in-process fallback instead.
//
// Parameters:
//   - cfg: Configuration for storage, cache, bus, and retention. Nil takes
//     DefaultConfig.
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()

	store, err := initStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	fallback, err := cacheMemory.NewClient(&cacheMemory.Config{
		MaxEntries: cfg.Cache.MaxEntries,
	})
	if err != nil {
		_ = store.Close()
		return nil, NewMemoryError("NewClient", err)
	}

	var external cache.Backend
	if cfg.Cache.Redis != nil {
		redisBackend, err := cacheRedis.NewClient(&cacheRedis.Config{
			Addr:     cfg.Cache.Redis.Addr(),
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			_ = fallback.Close()
			_ = store.Close()
			return nil, NewMemoryError("NewClient", err)
		}
		external = redisBackend
	}

	cacheClient, err := cache.New(&cache.Config{
		External:        external,
		Fallback:        fallback,
		Namespace:       cfg.Namespace,
		DefaultTTL:      time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second,
		OpTimeout:       time.Duration(cfg.Cache.OpTimeoutMillis) * time.Millisecond,
		RecheckInterval: time.Duration(cfg.Cache.RecheckSeconds) * time.Second,
		Logger:          logger,
	})
	if err != nil {
		_ = fallback.Close()
		_ = store.Close()
		return nil, NewMemoryError("NewClient", err)
	}

	busClient, err := bus.New(&bus.Config{
		Store:  store,
		NodeID: cfg.Bus.NodeID,
		Logger: logger,
	})
	if err != nil {
		_ = cacheClient.Close()
		_ = store.Close()
		return nil, NewMemoryError("NewClient", err)
	}

	client := &Client{
		config:    cfg,
		store:     store,
		cache:     cacheClient,
		bus:       busClient,
		logger:    logger,
		retention: retentionPolicy(cfg.Retention),
		startedAt: time.Now(),
	}

	if interval := sweepInterval(cfg.Retention); interval > 0 {
		client.sweepStop = make(chan struct{})
		client.sweepWG.Add(1)
		go client.runSweeper(interval)
	}

	return client, nil
}

// Write stores an entry according to its write policy.
//
// Routing per MemoryType:
//   - MemoryTypeCache: cache tier only
//   - MemoryTypePersistent: durable store only
//   - MemoryTypeBoth: cache first (best-effort), then durable (authoritative)
//
// For Both, success requires the durable write; a failed cache write is
// reported through WriteResult.CacheErr and the write still counts as
// committed. The caller's entry is not mutated; defaults land in the
// returned result.
//
// Parameters:
//   - ctx: Context for cancellation
//   - entry: The entry to store
//
// Returns the write outcome, or an error if the authoritative tier failed.
//
// Example:
//
//	result, err := client.Write(ctx, entry)
//	if err != nil {
//	    // not persisted
//	}
//	if result.CacheErr != nil {
//	    // persisted, cache copy missing
//	}
func (c *Client) Write(ctx context.Context, entry *Entry) (*WriteResult, error) {
	if err := c.guard(); err != nil {
		return nil, NewMemoryError("Write", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := validateEntry(entry); err != nil {
		return nil, NewMemoryError("Write", err)
	}

	e := *entry
	if e.MemoryType == "" {
		e.MemoryType = MemoryTypeBoth
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	c.writes.Add(1)

	result := &WriteResult{
		Category:  e.Category,
		Key:       e.Key,
		CreatedAt: e.CreatedAt,
	}

	var cacheErr error
	if e.MemoryType == MemoryTypeCache || e.MemoryType == MemoryTypeBoth {
		data, err := json.Marshal(&e)
		if err != nil {
			cacheErr = err
		} else {
			cacheErr = c.cache.Set(ctx, e.Category, e.Key, data, c.effectiveTTL(&e))
		}
		result.Cached = cacheErr == nil
	}

	if e.MemoryType == MemoryTypeCache {
		// The cache is the only tier for this entry, so a total cache
		// failure fails the write.
		if cacheErr != nil {
			return nil, NewMemoryError("Write", ErrCacheUnavailable)
		}
		return result, nil
	}

	if err := c.store.Put(ctx, toStorageEntry(&e)); err != nil {
		return nil, NewMemoryError("Write", err)
	}
	result.Persisted = true
	result.CacheErr = cacheErr

	return result, nil
}

// Read retrieves an entry by category and key.
//
// The cache tier is tried first unless WithPreferCache(false) is given; on
// a miss the durable store answers. A durable hit is not repopulated into
// the cache; Refresh is the explicit path for that. An unreadable cache
// copy is dropped and the durable copy answers instead.
//
// Parameters:
//   - ctx: Context for cancellation
//   - category: The entry category, for example core.CategoryMarketData
//   - key: The entry key
//   - opts: Optional parameters (PreferCache)
//
// Returns the entry, or ErrNotFound when neither tier holds it.
func (c *Client) Read(ctx context.Context, category, key string, opts ...ReadOption) (*Entry, error) {
	if err := c.guard(); err != nil {
		return nil, NewMemoryError("Read", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if !ValidCategory(category) || key == "" {
		return nil, NewMemoryError("Read", ErrInvalidInput)
	}
	options := applyReadOptions(opts)
	c.reads.Add(1)

	if options.preferCache {
		data, err := c.cache.Get(ctx, category, key)
		if err == nil {
			var entry Entry
			if err := json.Unmarshal(data, &entry); err == nil {
				return &entry, nil
			}
			// Unreadable cache copies must never be served.
			_ = c.cache.Delete(ctx, category, key)
		}
	}

	stored, err := c.store.Get(ctx, category, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewMemoryError("Read", ErrNotFound)
		}
		return nil, NewMemoryError("Read", err)
	}
	return fromStorageEntry(stored), nil
}

// ReadLatest retrieves the newest durable entry of a category.
//
// Returns ErrNotFound when the category is empty.
func (c *Client) ReadLatest(ctx context.Context, category string) (*Entry, error) {
	if err := c.guard(); err != nil {
		return nil, NewMemoryError("ReadLatest", err)
	}
	if !ValidCategory(category) {
		return nil, NewMemoryError("ReadLatest", ErrInvalidInput)
	}
	c.reads.Add(1)

	entries, err := c.store.List(ctx, category, &storage.ListOptions{Limit: 1})
	if err != nil {
		return nil, NewMemoryError("ReadLatest", err)
	}
	if len(entries) == 0 {
		return nil, NewMemoryError("ReadLatest", ErrNotFound)
	}
	return fromStorageEntry(entries[0]), nil
}

// List retrieves durable entries of a category, newest first.
//
// The cache tier cannot enumerate, so listing always reads the durable
// store.
//
// Parameters:
//   - ctx: Context for cancellation
//   - category: The entry category
//   - opts: Optional filters (Source, KeyPrefix, Since, MinConfidence, Limit)
//
// Example:
//
//	signals, err := client.List(ctx, core.CategoryTradingSignal,
//	    core.WithMinConfidence(0.8),
//	    core.WithLimit(20),
//	)
func (c *Client) List(ctx context.Context, category string, opts ...ListOption) ([]*Entry, error) {
	if err := c.guard(); err != nil {
		return nil, NewMemoryError("List", err)
	}
	if !ValidCategory(category) {
		return nil, NewMemoryError("List", ErrInvalidInput)
	}
	options := applyListOptions(opts)

	entries, err := c.store.List(ctx, category, &storage.ListOptions{
		Source:        options.source,
		KeyPrefix:     options.keyPrefix,
		Since:         options.since,
		MinConfidence: options.minConfidence,
		Limit:         options.limit,
	})
	if err != nil {
		return nil, NewMemoryError("List", err)
	}
	return fromStorageEntries(entries), nil
}

// Delete removes an entry from every tier. Deleting an absent entry is not
// an error; cache-only entries leave no durable trace to check.
func (c *Client) Delete(ctx context.Context, category, key string) error {
	if err := c.guard(); err != nil {
		return NewMemoryError("Delete", err)
	}
	if !ValidCategory(category) || key == "" {
		return NewMemoryError("Delete", ErrInvalidInput)
	}

	// Cache copy goes first so a concurrent read cannot serve it after
	// the durable delete.
	if err := c.cache.Delete(ctx, category, key); err != nil {
		c.logger.Warn("cache delete failed",
			"category", category, "key", key, "error", err)
	}

	if err := c.store.Delete(ctx, category, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return NewMemoryError("Delete", err)
	}
	return nil
}

// Publish audits an event durably and dispatches it synchronously to
// matching subscribers. The event's ID and CreatedAt are filled in when
// zero.
//
// Handler errors never propagate to the publisher; a failed durable append
// does, and then no handler runs.
func (c *Client) Publish(ctx context.Context, event *Event) error {
	if err := c.guard(); err != nil {
		return NewMemoryError("Publish", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if event == nil || event.Type == "" {
		return NewMemoryError("Publish", ErrInvalidInput)
	}

	storedEvent := toStorageEvent(event)
	if err := c.bus.Publish(ctx, storedEvent); err != nil {
		return NewMemoryError("Publish", err)
	}
	event.ID = storedEvent.ID
	event.CreatedAt = storedEvent.CreatedAt
	return nil
}

// Subscribe registers a handler for events matching the given filters and
// returns its subscription token.
//
// Parameters:
//   - handler: Callback invoked synchronously per matching event
//   - opts: Optional filters (EventType, Target)
//
// Example:
//
//	token, err := client.Subscribe(onSignal,
//	    core.WithEventType(core.EventTradingSignalGenerated),
//	    core.WithTarget(core.SourceTrading),
//	)
func (c *Client) Subscribe(handler Handler, opts ...SubscribeOption) (string, error) {
	if err := c.guard(); err != nil {
		return "", NewMemoryError("Subscribe", err)
	}
	if handler == nil {
		return "", NewMemoryError("Subscribe", ErrInvalidInput)
	}

	options := applySubscribeOptions(opts)
	var busOpts []bus.SubscribeOption
	if options.eventType != "" {
		busOpts = append(busOpts, bus.WithEventType(options.eventType))
	}
	if options.target != "" {
		busOpts = append(busOpts, bus.WithTarget(options.target))
	}

	token, err := c.bus.Subscribe(func(ctx context.Context, event *storage.Event) error {
		return handler(ctx, fromStorageEvent(event))
	}, busOpts...)
	if err != nil {
		return "", NewMemoryError("Subscribe", err)
	}
	return token, nil
}

// Unsubscribe removes the subscription identified by token.
func (c *Client) Unsubscribe(token string) error {
	if err := c.guard(); err != nil {
		return NewMemoryError("Unsubscribe", err)
	}
	if err := c.bus.Unsubscribe(token); err != nil {
		return NewMemoryError("Unsubscribe", err)
	}
	return nil
}

// Unprocessed returns events not yet marked processed, oldest first.
//
// This is the reconciliation path for consumers that were down during the
// live dispatch. A non-empty target also matches broadcast events.
func (c *Client) Unprocessed(ctx context.Context, target string, limit int) ([]*Event, error) {
	if err := c.guard(); err != nil {
		return nil, NewMemoryError("Unprocessed", err)
	}

	events, err := c.bus.Unprocessed(ctx, target, limit)
	if err != nil {
		return nil, NewMemoryError("Unprocessed", err)
	}
	return fromStorageEvents(events), nil
}

// MarkProcessed flags an event as handled in the durable trail.
func (c *Client) MarkProcessed(ctx context.Context, id int64) error {
	if err := c.guard(); err != nil {
		return NewMemoryError("MarkProcessed", err)
	}
	if err := c.bus.MarkProcessed(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewMemoryError("MarkProcessed", ErrNotFound)
		}
		return NewMemoryError("MarkProcessed", err)
	}
	return nil
}

// Refresh repopulates the cache copy of an entry from its durable copy.
//
// Read never repopulates after a durable fallback hit; this is the
// explicit path for warming a key back into the cache. The refreshed copy
// lives in both tiers again and carries the entry's TTL, or the category
// default when the entry has none.
//
// Returns ErrNotFound when no durable copy exists.
func (c *Client) Refresh(ctx context.Context, category, key string) error {
	if err := c.guard(); err != nil {
		return NewMemoryError("Refresh", err)
	}
	if !ValidCategory(category) || key == "" {
		return NewMemoryError("Refresh", ErrInvalidInput)
	}

	stored, err := c.store.Get(ctx, category, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewMemoryError("Refresh", ErrNotFound)
		}
		return NewMemoryError("Refresh", err)
	}

	entry := fromStorageEntry(stored)
	entry.MemoryType = MemoryTypeBoth
	data, err := json.Marshal(entry)
	if err != nil {
		return NewMemoryError("Refresh", err)
	}
	if err := c.cache.Set(ctx, category, key, data, c.effectiveTTL(entry)); err != nil {
		return NewMemoryError("Refresh", ErrCacheUnavailable)
	}
	return nil
}

// RefreshCache probes the external cache backend immediately. A nil return
// means the backend serves again; the error reports why it is still out.
func (c *Client) RefreshCache(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return NewMemoryError("RefreshCache", err)
	}
	if err := c.cache.Refresh(ctx); err != nil {
		return NewMemoryError("RefreshCache", err)
	}
	return nil
}

// Sweep runs a retention sweep now and returns the number of removed rows.
// The background sweeper runs the same sweep on its schedule.
func (c *Client) Sweep(ctx context.Context) (int64, error) {
	if err := c.guard(); err != nil {
		return 0, NewMemoryError("Sweep", err)
	}

	removed, err := c.store.Sweep(ctx, c.retention)
	if err != nil {
		return removed, NewMemoryError("Sweep", err)
	}
	return removed, nil
}

// Stats returns an observability snapshot spanning the durable store, the
// cache tier, and the event bus.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	if err := c.guard(); err != nil {
		return nil, NewMemoryError("Stats", err)
	}

	storeStats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, NewMemoryError("Stats", err)
	}
	cacheStats := c.cache.Stats()
	busStats := c.bus.Stats()

	var hitRate float64
	if total := cacheStats.Hits + cacheStats.Misses; total > 0 {
		hitRate = float64(cacheStats.Hits) / float64(total)
	}

	return &Stats{
		Uptime:           time.Since(c.startedAt),
		Writes:           c.writes.Load(),
		Reads:            c.reads.Load(),
		CacheHits:        cacheStats.Hits,
		CacheMisses:      cacheStats.Misses,
		CacheHitRate:     hitRate,
		CacheDrops:       cacheStats.Drops,
		CacheBackend:     cacheStats.Backend,
		CacheDegraded:    cacheStats.Degraded,
		EntryCounts:      storeStats.EntryCounts,
		EventCount:       storeStats.EventCount,
		StoreSizeBytes:   storeStats.SizeBytes,
		EventsPublished:  busStats.Published,
		EventsDispatched: busStats.Dispatched,
		HandlerErrors:    busStats.HandlerErrors,
		Subscriptions:    busStats.Subscriptions,
	}, nil
}

// Close stops the background sweeper and releases the cache and store.
// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.sweepStop != nil {
		close(c.sweepStop)
		c.sweepWG.Wait()
	}

	var firstErr error
	if err := c.cache.Close(); err != nil {
		firstErr = err
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return NewMemoryError("Close", firstErr)
}

// guard rejects operations on a closed client.
func (c *Client) guard() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// effectiveTTL resolves the cache TTL for an entry: its own TTL, then the
// category default, then the tier default.
func (c *Client) effectiveTTL(entry *Entry) time.Duration {
	if entry.TTL > 0 {
		return entry.TTL
	}
	if secs, ok := c.config.Cache.CategoryTTLSeconds[entry.Category]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// runSweeper runs retention sweeps until the client closes.
func (c *Client) runSweeper(interval time.Duration) {
	defer c.sweepWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.sweepStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := c.store.Sweep(ctx, c.retention)
			cancel()
			if err != nil {
				c.logger.Warn("retention sweep failed", "error", err)
			} else if removed > 0 {
				c.logger.Info("retention sweep finished", "removed", removed)
			}
		}
	}
}

// validateEntry checks the closed category set, the key, the policy, and
// the confidence range.
func validateEntry(entry *Entry) error {
	if entry == nil {
		return ErrInvalidInput
	}
	if !ValidCategory(entry.Category) {
		return ErrInvalidInput
	}
	if entry.Key == "" {
		return ErrInvalidInput
	}
	switch entry.MemoryType {
	case "", MemoryTypeCache, MemoryTypePersistent, MemoryTypeBoth:
	default:
		return ErrInvalidInput
	}
	if entry.Confidence < 0 || entry.Confidence > 1 {
		return ErrInvalidInput
	}
	return nil
}

// initStore initializes the durable store backend.
func initStore(cfg StoreConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: configString(cfg.Config, "db_path", "./trademem.db"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     configString(cfg.Config, "host", "localhost"),
			Port:     configInt(cfg.Config, "port", 5432),
			User:     configString(cfg.Config, "user", "postgres"),
			Password: configString(cfg.Config, "password", ""),
			DBName:   configString(cfg.Config, "db_name", "trademem"),
			SSLMode:  configString(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     configString(cfg.Config, "host", "localhost"),
			Port:     configInt(cfg.Config, "port", 3306),
			User:     configString(cfg.Config, "user", "root"),
			Password: configString(cfg.Config, "password", ""),
			DBName:   configString(cfg.Config, "db_name", "trademem"),
		})
	default:
		return nil, NewMemoryError("initStore", ErrInvalidConfig)
	}
}

// retentionPolicy converts the retention configuration into the sweep
// policy used by the store.
func retentionPolicy(cfg RetentionConfig) *storage.RetentionPolicy {
	days := cfg.DaysToKeep
	if days <= 0 {
		days = 7
	}
	eventDays := cfg.ProcessedEventDays
	if eventDays <= 0 {
		eventDays = 1
	}

	policy := &storage.RetentionPolicy{
		EntryMaxAge:          make(map[string]time.Duration),
		DefaultEntryMaxAge:   time.Duration(days) * 24 * time.Hour,
		ProcessedEventMaxAge: time.Duration(eventDays) * 24 * time.Hour,
	}
	for category, categoryDays := range cfg.CategoryDaysToKeep {
		if categoryDays > 0 {
			policy.EntryMaxAge[category] = time.Duration(categoryDays) * 24 * time.Hour
		}
	}
	return policy
}

// sweepInterval resolves the background sweep interval. Zero disables the
// sweeper.
func sweepInterval(cfg RetentionConfig) time.Duration {
	if cfg.SweepIntervalSeconds < 0 {
		return 0
	}
	if cfg.SweepIntervalSeconds == 0 {
		return time.Hour
	}
	return time.Duration(cfg.SweepIntervalSeconds) * time.Second
}
