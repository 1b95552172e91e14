package core

import (
	"context"
	"time"
)

// Entry categories. Every entry belongs to exactly one category, which
// determines its durable grouping and its default cache TTL.
const (
	// CategoryMarketData holds bars, ticks, and order book snapshots.
	CategoryMarketData = "market_data"

	// CategoryAgentDecision holds decisions produced by AI agents.
	CategoryAgentDecision = "agent_decision"

	// CategoryTradingSignal holds actionable trading signals.
	CategoryTradingSignal = "trading_signal"

	// CategorySystemState holds component status and health snapshots.
	CategorySystemState = "system_state"

	// CategoryEvent holds generic event-shaped entries.
	CategoryEvent = "event"
)

// Entry sources identify which side of the system produced an entry.
const (
	// SourceAI marks entries produced by the decision subsystem.
	SourceAI = "ai_framework"

	// SourceTrading marks entries produced by the execution subsystem.
	SourceTrading = "trading_framework"

	// SourceShared marks entries produced by coordination code itself.
	SourceShared = "shared"
)

// Well-known event types exchanged between the subsystems.
const (
	// EventMarketBarReceived announces a new market bar entry.
	EventMarketBarReceived = "market_bar_received"

	// EventMarketTickReceived announces a new market tick entry.
	EventMarketTickReceived = "market_tick_received"

	// EventAgentDecisionMade announces a new agent decision entry.
	EventAgentDecisionMade = "agent_decision_made"

	// EventTradingSignalGenerated announces a new trading signal entry.
	EventTradingSignalGenerated = "trading_signal_generated"

	// EventHighConfidenceSignal announces a decision confident enough to
	// act on immediately.
	EventHighConfidenceSignal = "high_confidence_signal"
)

// MemoryType is the write policy of an entry: which tiers hold it.
type MemoryType string

const (
	// MemoryTypeCache keeps the entry in the volatile cache only. The
	// entry is gone after restart, TTL expiry, or eviction.
	MemoryTypeCache MemoryType = "cache"

	// MemoryTypePersistent keeps the entry in the durable store only.
	MemoryTypePersistent MemoryType = "persistent"

	// MemoryTypeBoth keeps the entry in both tiers. The durable copy is
	// authoritative; the cache copy is a possibly-stale accelerator.
	MemoryTypeBoth MemoryType = "both"
)

// Entry is the unit of data exchanged through the memory system.
//
// Entries are immutable once written; a repeat write under the same
// (Category, Key) overwrites the previous value.
//
// Example:
//
//	entry := &core.Entry{
//	    Category:   core.CategoryMarketData,
//	    Key:        "EURUSD:bar:1",
//	    Payload:    map[string]interface{}{"close": 1.0832},
//	    Source:     core.SourceTrading,
//	    MemoryType: core.MemoryTypeBoth,
//	}
type Entry struct {
	// Category groups entries of one kind, for example market_data.
	Category string `json:"category"`

	// Key identifies the entry within its category. Unique per category;
	// a repeat write overwrites (last-writer-wins).
	Key string `json:"key"`

	// Payload is the structured content of the entry.
	Payload map[string]interface{} `json:"payload"`

	// Source names the subsystem that produced the entry.
	Source string `json:"source"`

	// MemoryType selects the tiers the entry is written to.
	// Defaults to MemoryTypeBoth.
	MemoryType MemoryType `json:"memory_type"`

	// CreatedAt is the write timestamp. Zero means the write time.
	CreatedAt time.Time `json:"created_at"`

	// TTL bounds the cached lifetime only; durable copies never expire
	// except through retention sweeps. Zero takes the category default.
	TTL time.Duration `json:"ttl,omitempty"`

	// Confidence scores decision and signal entries in [0,1].
	// Zero means unset.
	Confidence float64 `json:"confidence,omitempty"`
}

// Event is a notification that new data is available.
//
// Events are audited in the durable store so that a consumer that missed
// the live dispatch can recover them later.
type Event struct {
	// ID is assigned at publish time when zero.
	ID int64 `json:"id"`

	// Type classifies the event, for example trading_signal_generated.
	Type string `json:"event_type"`

	// Data is the structured event payload.
	Data map[string]interface{} `json:"event_data"`

	// Source names the subsystem that published the event.
	Source string `json:"source"`

	// Target names the consumer that should react. Empty broadcasts to
	// all subscribers.
	Target string `json:"target,omitempty"`

	// CreatedAt is the publish timestamp. Zero means the publish time.
	CreatedAt time.Time `json:"created_at"`

	// Processed reports whether a consumer has handled the event.
	Processed bool `json:"processed"`
}

// WriteResult reports the outcome of a write.
//
// A non-nil CacheErr with a nil operation error is a partial failure: the
// durable copy was written, the cache copy was not. Callers should log it
// and treat the write as committed.
type WriteResult struct {
	// Category and Key echo the written entry.
	Category string `json:"category"`
	Key      string `json:"key"`

	// CreatedAt is the timestamp recorded for the entry.
	CreatedAt time.Time `json:"created_at"`

	// Persisted reports whether the durable store holds the entry.
	Persisted bool `json:"persisted"`

	// Cached reports whether the cache tier holds the entry.
	Cached bool `json:"cached"`

	// CacheErr carries the cache failure of a partial write.
	CacheErr error `json:"-"`
}

// Stats is an observability snapshot of the whole memory system.
type Stats struct {
	// Uptime is the time since the client was created.
	Uptime time.Duration `json:"uptime"`

	// Writes and Reads are facade operation totals.
	Writes int64 `json:"writes"`
	Reads  int64 `json:"reads"`

	// CacheHits and CacheMisses count cache tier read outcomes.
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	// CacheHitRate is CacheHits over all cache reads, 0 when no reads.
	CacheHitRate float64 `json:"cache_hit_rate"`

	// CacheDrops counts cache writes rejected or entries evicted under
	// capacity pressure.
	CacheDrops int64 `json:"cache_drops"`

	// CacheBackend names the backend currently serving the cache tier.
	CacheBackend string `json:"cache_backend"`

	// CacheDegraded reports whether the external cache backend is out of
	// service.
	CacheDegraded bool `json:"cache_degraded"`

	// EntryCounts is the durable entry count per category.
	EntryCounts map[string]int64 `json:"entry_counts"`

	// EventCount is the durable event count.
	EventCount int64 `json:"event_count"`

	// StoreSizeBytes is the durable store size on disk.
	StoreSizeBytes int64 `json:"store_size_bytes"`

	// EventsPublished and EventsDispatched count bus activity;
	// HandlerErrors counts handler errors and panics.
	EventsPublished  int64 `json:"events_published"`
	EventsDispatched int64 `json:"events_dispatched"`
	HandlerErrors    int64 `json:"handler_errors"`

	// Subscriptions is the current number of bus subscriptions.
	Subscriptions int `json:"subscriptions"`
}

// Handler processes a dispatched event. Handlers run synchronously on the
// publisher's goroutine and must not block for long.
type Handler func(ctx context.Context, event *Event) error

// validCategories is the closed set of entry categories.
var validCategories = map[string]bool{
	CategoryMarketData:    true,
	CategoryAgentDecision: true,
	CategoryTradingSignal: true,
	CategorySystemState:   true,
	CategoryEvent:         true,
}

// ValidCategory reports whether category is one of the defined categories.
func ValidCategory(category string) bool {
	return validCategories[category]
}
