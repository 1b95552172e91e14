package core

import (
	"time"
)

// readOptions holds optional parameters for the Read operation.
type readOptions struct {
	// preferCache controls whether the cache tier is tried first.
	preferCache bool
}

// ReadOption is a function that configures read options.
type ReadOption func(*readOptions)

// WithPreferCache controls whether a read tries the cache tier before the
// durable store. Defaults to true.
//
// Parameters:
//   - prefer: False forces the read straight to the durable store
//
// Example:
//
//	entry, err := client.Read(ctx, core.CategoryMarketData, "EURUSD:bar:1",
//	    core.WithPreferCache(false),
//	)
func WithPreferCache(prefer bool) ReadOption {
	return func(o *readOptions) {
		o.preferCache = prefer
	}
}

// applyReadOptions applies read options with defaults.
func applyReadOptions(opts []ReadOption) *readOptions {
	options := &readOptions{preferCache: true}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// listOptions holds optional parameters for the List operation.
type listOptions struct {
	source        string
	keyPrefix     string
	since         time.Time
	minConfidence float64
	limit         int
}

// ListOption is a function that configures list options.
type ListOption func(*listOptions)

// WithSource filters listed entries to one producing subsystem.
//
// Parameters:
//   - source: The producer to match, for example core.SourceAI
func WithSource(source string) ListOption {
	return func(o *listOptions) {
		o.source = source
	}
}

// WithKeyPrefix filters listed entries to keys with the given prefix.
//
// Keys follow the {instrument_or_agent}:{subtype}:{sequence} convention, so
// a prefix like "EURUSD:" selects one instrument.
//
// Parameters:
//   - prefix: The literal key prefix to match
func WithKeyPrefix(prefix string) ListOption {
	return func(o *listOptions) {
		o.keyPrefix = prefix
	}
}

// WithSince filters listed entries to those created at or after t.
//
// Parameters:
//   - t: The inclusive lower bound on creation time
func WithSince(t time.Time) ListOption {
	return func(o *listOptions) {
		o.since = t
	}
}

// WithMinConfidence filters listed entries to those scored at or above the
// given confidence. Entries without a confidence score are excluded.
//
// Parameters:
//   - confidence: The inclusive lower bound in [0,1]
func WithMinConfidence(confidence float64) ListOption {
	return func(o *listOptions) {
		o.minConfidence = confidence
	}
}

// WithLimit caps the number of listed entries. Defaults to 100.
//
// Parameters:
//   - limit: The maximum number of entries to return
func WithLimit(limit int) ListOption {
	return func(o *listOptions) {
		o.limit = limit
	}
}

// applyListOptions applies list options with defaults.
func applyListOptions(opts []ListOption) *listOptions {
	options := &listOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// subscribeOptions holds optional parameters for the Subscribe operation.
type subscribeOptions struct {
	eventType string
	target    string
}

// SubscribeOption is a function that configures subscription options.
type SubscribeOption func(*subscribeOptions)

// WithEventType restricts a subscription to one event type.
//
// Parameters:
//   - eventType: The event type to match, for example core.EventTradingSignalGenerated
func WithEventType(eventType string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.eventType = eventType
	}
}

// WithTarget restricts a subscription to events aimed at one consumer.
// Broadcast events still match.
//
// Parameters:
//   - target: The consumer name to match, for example core.SourceTrading
func WithTarget(target string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.target = target
	}
}

// applySubscribeOptions applies subscription options with defaults.
func applySubscribeOptions(opts []SubscribeOption) *subscribeOptions {
	options := &subscribeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
