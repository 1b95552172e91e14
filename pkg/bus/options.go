package bus

// subscribeOptions holds the filters applied to a subscription.
type subscribeOptions struct {
	eventType string
	target    string
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

// WithEventType restricts a subscription to one event type.
//
// Parameters:
//   - eventType: The event type to match, for example "trading_signal_generated"
func WithEventType(eventType string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.eventType = eventType
	}
}

// WithTarget restricts a subscription to events aimed at one consumer.
// Broadcast events, which carry no target, still match.
//
// Parameters:
//   - target: The consumer name to match, for example "trading"
func WithTarget(target string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.target = target
	}
}

// applySubscribeOptions folds the options into their defaults.
func applySubscribeOptions(opts []SubscribeOption) *subscribeOptions {
	options := &subscribeOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
