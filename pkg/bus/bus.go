// Package bus provides the in-process event bus.
//
// Publishing an event first appends it to the durable store's event table,
// then dispatches it synchronously to matching subscribers in registration
// order. Dispatch is at most once: a handler error or panic is logged and
// counted, never retried. Consumers that were down recover through the
// durable trail, reading unprocessed events and marking them processed.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/ainautilus/trademem-go/pkg/storage"
)

// ErrUnknownSubscription is returned when unsubscribing a token that is not
// registered.
var ErrUnknownSubscription = errors.New("unknown subscription")

// Handler processes a published event. Handlers run synchronously on the
// publisher's goroutine and must not block for long.
type Handler func(ctx context.Context, event *storage.Event) error

// subscription pairs a handler with its filters.
type subscription struct {
	token     string
	eventType string
	target    string
	handler   Handler
}

// matches reports whether the subscription wants the event. An empty filter
// matches everything; events without a target are broadcasts and reach
// every type-matched subscriber.
func (s *subscription) matches(event *storage.Event) bool {
	if s.eventType != "" && s.eventType != event.Type {
		return false
	}
	if s.target != "" && event.Target != "" && s.target != event.Target {
		return false
	}
	return true
}

// Bus dispatches events between the decision and execution subsystems.
type Bus struct {
	store  storage.Store
	node   *snowflake.Node
	logger *slog.Logger

	mu   sync.RWMutex
	subs []*subscription

	published     atomic.Int64
	dispatched    atomic.Int64
	handlerErrors atomic.Int64
}

// Config contains configuration for creating a bus.
type Config struct {
	// Store receives the durable audit copy of every published event.
	Store storage.Store
	// NodeID feeds snowflake ID generation. Defaults to 1.
	NodeID int64
	// Logger receives handler failures.
	Logger *slog.Logger
}

// Stats is a snapshot of bus counters.
type Stats struct {
	// Published is the number of events accepted and audited.
	Published int64
	// Dispatched is the number of successful handler invocations.
	Dispatched int64
	// HandlerErrors is the number of handler errors and panics.
	HandlerErrors int64
	// Subscriptions is the current number of registered subscriptions.
	Subscriptions int
}

// New creates a bus writing its audit trail to the given store.
func New(cfg *Config) (*Bus, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("NewBus: store is required")
	}

	nodeID := cfg.NodeID
	if nodeID == 0 {
		nodeID = 1
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("NewBus: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{store: cfg.Store, node: node, logger: logger}, nil
}

// Publish audits the event and dispatches it to matching subscribers.
//
// A zero ID and CreatedAt are filled in. The durable append must succeed
// before any handler runs; when it fails the event is not dispatched.
func (b *Bus) Publish(ctx context.Context, event *storage.Event) error {
	if event == nil || event.Type == "" {
		return fmt.Errorf("Publish: event type is required")
	}

	if event.ID == 0 {
		event.ID = b.node.Generate().Int64()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := b.store.PutEvent(ctx, event); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	b.published.Add(1)

	b.dispatch(ctx, event)
	return nil
}

// Subscribe registers a handler and returns its subscription token.
func (b *Bus) Subscribe(handler Handler, opts ...SubscribeOption) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("Subscribe: handler is required")
	}

	options := applySubscribeOptions(opts)
	sub := &subscription{
		token:     uuid.NewString(),
		eventType: options.eventType,
		target:    options.target,
		handler:   handler,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub.token, nil
}

// Unsubscribe removes the subscription identified by token.
func (b *Bus) Unsubscribe(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.token == token {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("Unsubscribe: %w", ErrUnknownSubscription)
}

// Unprocessed returns events not yet marked processed, oldest first.
//
// A non-empty target also matches broadcast events. This is the
// reconciliation path for consumers that missed the live dispatch.
func (b *Bus) Unprocessed(ctx context.Context, target string, limit int) ([]*storage.Event, error) {
	events, err := b.store.ListEvents(ctx, &storage.EventOptions{
		Target:          target,
		UnprocessedOnly: true,
		Limit:           limit,
	})
	if err != nil {
		return nil, fmt.Errorf("Unprocessed: %w", err)
	}
	return events, nil
}

// MarkProcessed flags an event as handled in the durable trail.
func (b *Bus) MarkProcessed(ctx context.Context, id int64) error {
	if err := b.store.MarkEventProcessed(ctx, id); err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() *Stats {
	b.mu.RLock()
	subs := len(b.subs)
	b.mu.RUnlock()

	return &Stats{
		Published:     b.published.Load(),
		Dispatched:    b.dispatched.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		Subscriptions: subs,
	}
}

// dispatch invokes matching handlers in registration order.
func (b *Bus) dispatch(ctx context.Context, event *storage.Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.matches(event) {
			continue
		}
		b.invoke(ctx, sub, event)
	}
}

// invoke runs one handler, containing errors and panics.
func (b *Bus) invoke(ctx context.Context, sub *subscription, event *storage.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrors.Add(1)
			b.logger.Error("event handler panicked",
				"event_type", event.Type, "event_id", event.ID, "panic", r)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		b.handlerErrors.Add(1)
		b.logger.Warn("event handler failed",
			"event_type", event.Type, "event_id", event.ID, "error", err)
		return
	}
	b.dispatched.Add(1)
}
