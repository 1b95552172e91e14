package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ainautilus/trademem-go/pkg/core"
)

// Decision types that a high confidence score turns into an immediately
// actionable signal.
const (
	DecisionBuySignal  = "buy_signal"
	DecisionSellSignal = "sell_signal"
)

// Decision is one decision produced by an AI agent.
type Decision struct {
	// AgentID identifies the agent that made the decision.
	AgentID string

	// DecisionType classifies the decision, for example buy_signal.
	DecisionType string

	// Data is the structured decision content.
	Data map[string]interface{}

	// Confidence scores the decision in [0,1].
	Confidence float64

	// TaskID optionally links the decision to an agent task.
	TaskID string

	// Timestamp is the decision time and is part of the entry key.
	Timestamp time.Time
}

// Signal is one trading signal derived from agent analysis.
type Signal struct {
	// SignalID identifies the signal and is the entry key.
	SignalID string

	// Action is the recommended action, for example buy or sell.
	Action string

	// Instrument identifies the instrument the signal applies to.
	Instrument string

	// Strength scores the signal in [0,1].
	Strength float64

	// Data is the structured signal content.
	Data map[string]interface{}

	// Timestamp is the signal time.
	Timestamp time.Time
}

// DecisionKey builds the entry key of a decision.
func DecisionKey(agentID, decisionType string, timestamp time.Time) string {
	return fmt.Sprintf("%s:%s:%d", agentID, decisionType, timestamp.UnixMilli())
}

// DecisionEntry converts a decision into an agent decision entry.
//
// The conversion is pure and inverted by DecisionFromEntry.
func DecisionEntry(decision *Decision) (*core.Entry, error) {
	if decision == nil {
		return nil, errors.New("nil decision")
	}
	if decision.AgentID == "" {
		return nil, errors.New("decision agent id is required")
	}
	if decision.DecisionType == "" {
		return nil, errors.New("decision type is required")
	}
	if decision.Timestamp.IsZero() {
		return nil, errors.New("decision timestamp is required")
	}

	data := decision.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	return &core.Entry{
		Category: core.CategoryAgentDecision,
		Key:      DecisionKey(decision.AgentID, decision.DecisionType, decision.Timestamp),
		Payload: map[string]interface{}{
			"agent_id":      decision.AgentID,
			"decision_type": decision.DecisionType,
			"data":          data,
			"confidence":    decision.Confidence,
			"task_id":       decision.TaskID,
			"timestamp":     formatTime(decision.Timestamp),
		},
		Source:     core.SourceAI,
		MemoryType: core.MemoryTypeBoth,
		Confidence: decision.Confidence,
	}, nil
}

// DecisionFromEntry converts an agent decision entry back into a decision.
func DecisionFromEntry(entry *core.Entry) (*Decision, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrMalformedPayload)
	}
	if entry.Category != core.CategoryAgentDecision {
		return nil, fmt.Errorf("%w: %s", ErrWrongCategory, entry.Category)
	}

	decision := &Decision{}
	var err error
	if decision.AgentID, err = payloadString(entry.Payload, "agent_id"); err != nil {
		return nil, err
	}
	if decision.DecisionType, err = payloadString(entry.Payload, "decision_type"); err != nil {
		return nil, err
	}
	if decision.Data, err = payloadMap(entry.Payload, "data"); err != nil {
		return nil, err
	}
	if decision.Confidence, err = payloadFloat(entry.Payload, "confidence"); err != nil {
		return nil, err
	}
	if decision.TaskID, err = payloadString(entry.Payload, "task_id"); err != nil {
		return nil, err
	}
	if decision.Timestamp, err = payloadTime(entry.Payload, "timestamp"); err != nil {
		return nil, err
	}
	return decision, nil
}

// SignalEntry converts a signal into a trading signal entry.
//
// The conversion is pure and inverted by SignalFromEntry. The signal
// strength doubles as the entry confidence so that signal queries can
// filter on it.
func SignalEntry(signal *Signal) (*core.Entry, error) {
	if signal == nil {
		return nil, errors.New("nil signal")
	}
	if signal.SignalID == "" {
		return nil, errors.New("signal id is required")
	}
	if signal.Timestamp.IsZero() {
		return nil, errors.New("signal timestamp is required")
	}

	data := signal.Data
	if data == nil {
		data = map[string]interface{}{}
	}

	return &core.Entry{
		Category: core.CategoryTradingSignal,
		Key:      signal.SignalID,
		Payload: map[string]interface{}{
			"signal_id":  signal.SignalID,
			"action":     signal.Action,
			"instrument": signal.Instrument,
			"strength":   signal.Strength,
			"data":       data,
			"timestamp":  formatTime(signal.Timestamp),
		},
		Source:     core.SourceAI,
		MemoryType: core.MemoryTypeBoth,
		Confidence: signal.Strength,
	}, nil
}

// SignalFromEntry converts a trading signal entry back into a signal.
func SignalFromEntry(entry *core.Entry) (*Signal, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrMalformedPayload)
	}
	if entry.Category != core.CategoryTradingSignal {
		return nil, fmt.Errorf("%w: %s", ErrWrongCategory, entry.Category)
	}

	signal := &Signal{}
	var err error
	if signal.SignalID, err = payloadString(entry.Payload, "signal_id"); err != nil {
		return nil, err
	}
	if signal.Action, err = payloadString(entry.Payload, "action"); err != nil {
		return nil, err
	}
	if signal.Instrument, err = payloadString(entry.Payload, "instrument"); err != nil {
		return nil, err
	}
	if signal.Strength, err = payloadFloat(entry.Payload, "strength"); err != nil {
		return nil, err
	}
	if signal.Data, err = payloadMap(entry.Payload, "data"); err != nil {
		return nil, err
	}
	if signal.Timestamp, err = payloadTime(entry.Payload, "timestamp"); err != nil {
		return nil, err
	}
	return signal, nil
}

// DecisionBridge feeds agent decisions and trading signals from the AI
// subsystem into the shared memory and notifies the trading subsystem.
type DecisionBridge struct {
	mem       *core.Client
	threshold float64
}

// DecisionOption customizes a DecisionBridge.
type DecisionOption func(*DecisionBridge)

// WithHighConfidenceThreshold overrides the confidence above which buy and
// sell decisions raise a high confidence signal event.
func WithHighConfidenceThreshold(threshold float64) DecisionOption {
	return func(b *DecisionBridge) {
		b.threshold = threshold
	}
}

// NewDecisionBridge creates a decision bridge over the shared memory
// client.
func NewDecisionBridge(mem *core.Client, opts ...DecisionOption) *DecisionBridge {
	b := &DecisionBridge{
		mem:       mem,
		threshold: HighConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PutDecision stores a decision and publishes an agent_decision_made event
// targeted at the trading subsystem.
//
// A buy or sell decision whose confidence exceeds the bridge threshold
// additionally publishes a high_confidence_signal event so the trading side
// can act without polling.
//
// Parameters:
//   - ctx: Context for cancellation
//   - decision: The decision to store. A zero Timestamp defaults to now.
//
// Returns the write result and any error. A non-nil result with a non-nil
// error means the entry was committed but an event could not be published.
func (b *DecisionBridge) PutDecision(ctx context.Context, decision *Decision) (*core.WriteResult, error) {
	if decision == nil {
		return nil, errors.New("nil decision")
	}

	d := *decision
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}

	entry, err := DecisionEntry(&d)
	if err != nil {
		return nil, err
	}

	result, err := b.mem.Write(ctx, entry)
	if err != nil {
		return nil, err
	}

	err = b.mem.Publish(ctx, &core.Event{
		Type: core.EventAgentDecisionMade,
		Data: map[string]interface{}{
			"agent_id":      d.AgentID,
			"decision_type": d.DecisionType,
			"confidence":    d.Confidence,
			"task_id":       d.TaskID,
			"key":           entry.Key,
		},
		Source: core.SourceAI,
		Target: core.SourceTrading,
	})
	if err != nil {
		return result, err
	}

	if d.Confidence > b.threshold && actionable(d.DecisionType) {
		err = b.mem.Publish(ctx, &core.Event{
			Type: core.EventHighConfidenceSignal,
			Data: map[string]interface{}{
				"agent_id":        d.AgentID,
				"decision_type":   d.DecisionType,
				"confidence":      d.Confidence,
				"priority":        "high",
				"requires_action": true,
			},
			Source: core.SourceAI,
			Target: core.SourceTrading,
		})
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// PutSignal stores a signal and publishes a trading_signal_generated event
// to all subscribers.
//
// Parameters:
//   - ctx: Context for cancellation
//   - signal: The signal to store. A zero Timestamp defaults to now.
//
// Returns the write result and any error. A non-nil result with a non-nil
// error means the entry was committed but the event could not be published.
func (b *DecisionBridge) PutSignal(ctx context.Context, signal *Signal) (*core.WriteResult, error) {
	if signal == nil {
		return nil, errors.New("nil signal")
	}

	s := *signal
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	entry, err := SignalEntry(&s)
	if err != nil {
		return nil, err
	}

	result, err := b.mem.Write(ctx, entry)
	if err != nil {
		return nil, err
	}

	err = b.mem.Publish(ctx, &core.Event{
		Type: core.EventTradingSignalGenerated,
		Data: map[string]interface{}{
			"signal_id":  s.SignalID,
			"action":     s.Action,
			"instrument": s.Instrument,
			"key":        entry.Key,
		},
		Source: core.SourceAI,
	})
	return result, err
}

// GetSignal reads one signal back by id.
func (b *DecisionBridge) GetSignal(ctx context.Context, signalID string) (*Signal, error) {
	entry, err := b.mem.Read(ctx, core.CategoryTradingSignal, signalID)
	if err != nil {
		return nil, err
	}
	return SignalFromEntry(entry)
}

// LatestDecision reads the newest decision of an agent and decision type.
func (b *DecisionBridge) LatestDecision(ctx context.Context, agentID, decisionType string) (*Decision, error) {
	entries, err := b.mem.List(ctx, core.CategoryAgentDecision,
		core.WithKeyPrefix(agentID+":"+decisionType+":"),
		core.WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, core.NewMemoryError("LatestDecision", core.ErrNotFound)
	}
	return DecisionFromEntry(entries[0])
}

// Decisions lists the newest decisions of an agent, newest first.
func (b *DecisionBridge) Decisions(ctx context.Context, agentID string, limit int) ([]*Decision, error) {
	entries, err := b.mem.List(ctx, core.CategoryAgentDecision,
		core.WithKeyPrefix(agentID+":"),
		core.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}

	decisions := make([]*Decision, 0, len(entries))
	for _, entry := range entries {
		decision, err := DecisionFromEntry(entry)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

func actionable(decisionType string) bool {
	return decisionType == DecisionBuySignal || decisionType == DecisionSellSignal
}
