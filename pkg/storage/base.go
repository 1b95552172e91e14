// Package storage provides interfaces and types for durable entry storage backends.
//
// It defines the Store interface that all storage implementations must satisfy,
// along with entry and event types, query options, and retention policies.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entry or event does not exist.
//
// Backends wrap it with operation context; callers should test with errors.Is.
var ErrNotFound = errors.New("not found")

// Entry represents an entry persisted in the durable store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Entry structure.
type Entry struct {
	// Category is the entry category (market_data, agent_decision, ...).
	Category string

	// Key uniquely identifies the entry within its category.
	Key string

	// Payload contains the structured entry value. It is serialized to JSON
	// for storage.
	Payload map[string]interface{}

	// Source identifies the subsystem that produced the entry.
	Source string

	// CreatedAt is when the entry was written. Rewrites of the same
	// (category, key) replace it.
	CreatedAt time.Time

	// TTL is the cache lifetime requested by the producer. It is stored for
	// provenance only; durable copies never expire except by retention sweep.
	TTL time.Duration

	// Confidence is the producer-reported confidence (0.0-1.0). Meaningful
	// for decision and signal categories.
	Confidence float64
}

// Event represents a cross-subsystem notification kept for audit and
// reconciliation.
type Event struct {
	// ID is the unique event identifier.
	ID int64

	// Type is the event type (e.g. "market_bar_received").
	Type string

	// Data contains the structured event payload.
	Data map[string]interface{}

	// Source identifies the subsystem that published the event.
	Source string

	// Target identifies the subsystem that should react. Empty means
	// broadcast.
	Target string

	// CreatedAt is when the event was published.
	CreatedAt time.Time

	// Processed records whether a consumer has handled the event.
	Processed bool
}

// ListOptions contains options for List operations.
type ListOptions struct {
	// Source filters entries to those produced by a specific subsystem.
	Source string

	// KeyPrefix filters entries to keys starting with the prefix.
	KeyPrefix string

	// Since filters entries to those created at or after the given time.
	Since time.Time

	// MinConfidence filters out entries whose confidence is below the
	// threshold. Zero means no filtering.
	MinConfidence float64

	// Limit sets the maximum number of results to return.
	// Zero means backend default (100).
	Limit int

	// Offset skips that many entries, for paginated reads.
	Offset int
}

// EventOptions contains options for ListEvents operations.
type EventOptions struct {
	// Target filters events to those aimed at the given subsystem.
	// Broadcast events (empty target) always match.
	Target string

	// UnprocessedOnly restricts results to events not yet marked processed.
	// Unprocessed results are returned oldest first (handling order);
	// otherwise results are newest first (audit order).
	UnprocessedOnly bool

	// Limit sets the maximum number of results to return.
	// Zero means backend default (100).
	Limit int
}

// RetentionPolicy describes how long durable data is kept before a sweep
// removes it.
type RetentionPolicy struct {
	// EntryMaxAge maps a category to its retention horizon. Categories not
	// present use DefaultEntryMaxAge.
	EntryMaxAge map[string]time.Duration

	// DefaultEntryMaxAge is the horizon for categories without an explicit
	// entry in EntryMaxAge. Zero disables the default sweep.
	DefaultEntryMaxAge time.Duration

	// ProcessedEventMaxAge is the horizon for events already marked
	// processed. Unprocessed events are never swept.
	ProcessedEventMaxAge time.Duration
}

// DefaultRetention returns the retention policy used when none is configured:
// entries kept seven days, processed events kept one day.
func DefaultRetention() *RetentionPolicy {
	return &RetentionPolicy{
		DefaultEntryMaxAge:   7 * 24 * time.Hour,
		ProcessedEventMaxAge: 24 * time.Hour,
	}
}

// StoreStats reports durable store contents for the observability surface.
type StoreStats struct {
	// EntryCounts is the number of stored entries per category.
	EntryCounts map[string]int64

	// EventCount is the total number of stored events.
	EventCount int64

	// SizeBytes is the backend-reported database size. Zero when the
	// backend cannot report it.
	SizeBytes int64
}

// Store defines the interface for durable entry storage backends.
//
// All storage implementations (SQLite, PostgreSQL, MySQL) must implement this
// interface. Writes to the same (category, key) are serialized by the
// backend's transactional single-row upsert.
type Store interface {
	// Put inserts or overwrites the entry identified by (Category, Key).
	// The operation is idempotent: repeating a write leaves the same state.
	Put(ctx context.Context, entry *Entry) error

	// Get retrieves an entry by category and key.
	// Returns an error wrapping ErrNotFound when the entry does not exist.
	Get(ctx context.Context, category, key string) (*Entry, error)

	// List retrieves entries of a category, newest first, applying the
	// given filters.
	List(ctx context.Context, category string, opts *ListOptions) ([]*Entry, error)

	// Delete removes an entry by category and key.
	// Returns an error wrapping ErrNotFound when the entry does not exist.
	Delete(ctx context.Context, category, key string) error

	// PutEvent appends an event to the audit trail.
	PutEvent(ctx context.Context, event *Event) error

	// ListEvents retrieves events matching the given options. Used both for
	// audit browsing and for the unprocessed-event reconciliation path.
	ListEvents(ctx context.Context, opts *EventOptions) ([]*Event, error)

	// MarkEventProcessed flags an event as handled by a consumer.
	// Returns an error wrapping ErrNotFound when the event does not exist.
	MarkEventProcessed(ctx context.Context, id int64) error

	// Sweep removes entries and processed events older than the policy
	// horizons and returns the number of rows removed.
	Sweep(ctx context.Context, policy *RetentionPolicy) (int64, error)

	// Stats reports per-category entry counts, the event count, and the
	// database size.
	Stats(ctx context.Context) (*StoreStats, error)

	// Close closes the store and releases resources.
	Close() error
}
