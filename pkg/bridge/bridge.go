// Package bridge translates between subsystem-native objects and memory
// entries.
//
// Each bridge is a stateless adapter owning only a reference to the shared
// memory client. MarketBridge maps bars and ticks produced by the trading
// subsystem; DecisionBridge maps decisions and signals produced by the AI
// subsystem. The mapping functions are pure and invertible for every field
// the consuming side reads, so an object survives the trip through storage
// unchanged.
package bridge

import (
	"errors"
	"fmt"
	"time"
)

// HighConfidenceThreshold is the confidence above which a buy or sell
// decision additionally raises a high confidence signal event.
const HighConfidenceThreshold = 0.8

var (
	// ErrWrongCategory indicates an entry from a different category was
	// passed to a mapping function.
	ErrWrongCategory = errors.New("entry category does not match")

	// ErrMalformedPayload indicates an entry payload is missing a field or
	// holds a value of the wrong type.
	ErrMalformedPayload = errors.New("malformed entry payload")
)

// payloadString reads a required string field from an entry payload.
func payloadString(payload map[string]interface{}, field string) (string, error) {
	v, ok := payload[field]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedPayload, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedPayload, field)
	}
	return s, nil
}

// payloadFloat reads a required numeric field from an entry payload.
//
// JSON decoding yields float64 for all numbers; integer types appear when
// the payload has not passed through serialization yet.
func payloadFloat(payload map[string]interface{}, field string) (float64, error) {
	v, ok := payload[field]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedPayload, field)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformedPayload, field)
	}
}

// payloadInt reads a required integer field from an entry payload.
func payloadInt(payload map[string]interface{}, field string) (int64, error) {
	f, err := payloadFloat(payload, field)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// payloadTime reads a required RFC 3339 timestamp field from an entry
// payload.
func payloadTime(payload map[string]interface{}, field string) (time.Time, error) {
	s, err := payloadString(payload, field)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s is not a timestamp", ErrMalformedPayload, field)
	}
	return t, nil
}

// payloadMap reads an optional object field from an entry payload.
// A missing or nil field yields an empty map.
func payloadMap(payload map[string]interface{}, field string) (map[string]interface{}, error) {
	v, ok := payload[field]
	if !ok || v == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformedPayload, field)
	}
	return m, nil
}

// formatTime renders a timestamp for an entry payload. Payload timestamps
// are RFC 3339 strings so that a JSON round trip preserves them exactly.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
