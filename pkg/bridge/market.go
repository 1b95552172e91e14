package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ainautilus/trademem-go/pkg/core"
)

// Bar is one aggregated price bar produced by the trading subsystem.
type Bar struct {
	// Instrument identifies the traded instrument, for example EURUSD.
	Instrument string

	// Sequence orders the bars of one instrument and is part of the
	// entry key.
	Sequence int64

	// Open is the first traded price of the period.
	Open float64

	// High is the highest traded price of the period.
	High float64

	// Low is the lowest traded price of the period.
	Low float64

	// Close is the last traded price of the period.
	Close float64

	// Volume is the total traded volume of the period.
	Volume float64

	// Timestamp is the bar close time.
	Timestamp time.Time

	// BarType describes the aggregation, for example 1-MINUTE-BID.
	BarType string
}

// Tick is one top-of-book quote produced by the trading subsystem.
type Tick struct {
	// Instrument identifies the traded instrument.
	Instrument string

	// Sequence orders the ticks of one instrument and is part of the
	// entry key.
	Sequence int64

	// Bid is the best bid price.
	Bid float64

	// Ask is the best ask price.
	Ask float64

	// Last is the last traded price.
	Last float64

	// Volume is the size at the top of the book.
	Volume float64

	// Timestamp is the quote time.
	Timestamp time.Time
}

// BarKey builds the entry key of a bar.
func BarKey(instrument string, sequence int64) string {
	return fmt.Sprintf("%s:bar:%d", instrument, sequence)
}

// TickKey builds the entry key of a tick.
func TickKey(instrument string, sequence int64) string {
	return fmt.Sprintf("%s:tick:%d", instrument, sequence)
}

// BarEntry converts a bar into a market data entry.
//
// The conversion is pure and inverted by BarFromEntry. Bars carry the
// durable history of an instrument, so the entry routes to both tiers.
func BarEntry(bar *Bar) (*core.Entry, error) {
	if bar == nil {
		return nil, errors.New("nil bar")
	}
	if bar.Instrument == "" {
		return nil, errors.New("bar instrument is required")
	}
	if bar.Timestamp.IsZero() {
		return nil, errors.New("bar timestamp is required")
	}

	return &core.Entry{
		Category: core.CategoryMarketData,
		Key:      BarKey(bar.Instrument, bar.Sequence),
		Payload: map[string]interface{}{
			"type":       "bar",
			"instrument": bar.Instrument,
			"sequence":   bar.Sequence,
			"open":       bar.Open,
			"high":       bar.High,
			"low":        bar.Low,
			"close":      bar.Close,
			"volume":     bar.Volume,
			"timestamp":  formatTime(bar.Timestamp),
			"bar_type":   bar.BarType,
		},
		Source:     core.SourceTrading,
		MemoryType: core.MemoryTypeBoth,
	}, nil
}

// BarFromEntry converts a market data entry back into a bar.
func BarFromEntry(entry *core.Entry) (*Bar, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrMalformedPayload)
	}
	if entry.Category != core.CategoryMarketData {
		return nil, fmt.Errorf("%w: %s", ErrWrongCategory, entry.Category)
	}
	typ, err := payloadString(entry.Payload, "type")
	if err != nil {
		return nil, err
	}
	if typ != "bar" {
		return nil, fmt.Errorf("%w: payload type %s", ErrWrongCategory, typ)
	}

	bar := &Bar{}
	if bar.Instrument, err = payloadString(entry.Payload, "instrument"); err != nil {
		return nil, err
	}
	if bar.Sequence, err = payloadInt(entry.Payload, "sequence"); err != nil {
		return nil, err
	}
	if bar.Open, err = payloadFloat(entry.Payload, "open"); err != nil {
		return nil, err
	}
	if bar.High, err = payloadFloat(entry.Payload, "high"); err != nil {
		return nil, err
	}
	if bar.Low, err = payloadFloat(entry.Payload, "low"); err != nil {
		return nil, err
	}
	if bar.Close, err = payloadFloat(entry.Payload, "close"); err != nil {
		return nil, err
	}
	if bar.Volume, err = payloadFloat(entry.Payload, "volume"); err != nil {
		return nil, err
	}
	if bar.Timestamp, err = payloadTime(entry.Payload, "timestamp"); err != nil {
		return nil, err
	}
	if bar.BarType, err = payloadString(entry.Payload, "bar_type"); err != nil {
		return nil, err
	}
	return bar, nil
}

// TickEntry converts a tick into a market data entry.
//
// Ticks are high frequency and loss tolerated, so the entry routes to the
// cache tier only.
func TickEntry(tick *Tick) (*core.Entry, error) {
	if tick == nil {
		return nil, errors.New("nil tick")
	}
	if tick.Instrument == "" {
		return nil, errors.New("tick instrument is required")
	}
	if tick.Timestamp.IsZero() {
		return nil, errors.New("tick timestamp is required")
	}

	return &core.Entry{
		Category: core.CategoryMarketData,
		Key:      TickKey(tick.Instrument, tick.Sequence),
		Payload: map[string]interface{}{
			"type":       "tick",
			"instrument": tick.Instrument,
			"sequence":   tick.Sequence,
			"bid":        tick.Bid,
			"ask":        tick.Ask,
			"last":       tick.Last,
			"volume":     tick.Volume,
			"timestamp":  formatTime(tick.Timestamp),
		},
		Source:     core.SourceTrading,
		MemoryType: core.MemoryTypeCache,
	}, nil
}

// TickFromEntry converts a market data entry back into a tick.
func TickFromEntry(entry *core.Entry) (*Tick, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrMalformedPayload)
	}
	if entry.Category != core.CategoryMarketData {
		return nil, fmt.Errorf("%w: %s", ErrWrongCategory, entry.Category)
	}
	typ, err := payloadString(entry.Payload, "type")
	if err != nil {
		return nil, err
	}
	if typ != "tick" {
		return nil, fmt.Errorf("%w: payload type %s", ErrWrongCategory, typ)
	}

	tick := &Tick{}
	if tick.Instrument, err = payloadString(entry.Payload, "instrument"); err != nil {
		return nil, err
	}
	if tick.Sequence, err = payloadInt(entry.Payload, "sequence"); err != nil {
		return nil, err
	}
	if tick.Bid, err = payloadFloat(entry.Payload, "bid"); err != nil {
		return nil, err
	}
	if tick.Ask, err = payloadFloat(entry.Payload, "ask"); err != nil {
		return nil, err
	}
	if tick.Last, err = payloadFloat(entry.Payload, "last"); err != nil {
		return nil, err
	}
	if tick.Volume, err = payloadFloat(entry.Payload, "volume"); err != nil {
		return nil, err
	}
	if tick.Timestamp, err = payloadTime(entry.Payload, "timestamp"); err != nil {
		return nil, err
	}
	return tick, nil
}

// MarketBridge feeds market data from the trading subsystem into the shared
// memory and notifies the AI subsystem.
type MarketBridge struct {
	mem *core.Client
}

// NewMarketBridge creates a market data bridge over the shared memory
// client.
func NewMarketBridge(mem *core.Client) *MarketBridge {
	return &MarketBridge{mem: mem}
}

// PutBar stores a bar and publishes a market_bar_received event targeted at
// the AI subsystem.
//
// Parameters:
//   - ctx: Context for cancellation
//   - bar: The bar to store
//
// Returns the write result and any error. A non-nil result with a non-nil
// error means the entry was committed but the event could not be published.
func (b *MarketBridge) PutBar(ctx context.Context, bar *Bar) (*core.WriteResult, error) {
	entry, err := BarEntry(bar)
	if err != nil {
		return nil, err
	}

	result, err := b.mem.Write(ctx, entry)
	if err != nil {
		return nil, err
	}

	err = b.mem.Publish(ctx, &core.Event{
		Type: core.EventMarketBarReceived,
		Data: map[string]interface{}{
			"instrument": bar.Instrument,
			"key":        entry.Key,
			"timestamp":  formatTime(bar.Timestamp),
		},
		Source: core.SourceTrading,
		Target: core.SourceAI,
	})
	return result, err
}

// PutTick stores a tick in the cache tier and publishes a
// market_tick_received event targeted at the AI subsystem.
//
// Ticks are never persisted. A tick lost to eviction or expiry is replaced
// by the next one.
func (b *MarketBridge) PutTick(ctx context.Context, tick *Tick) (*core.WriteResult, error) {
	entry, err := TickEntry(tick)
	if err != nil {
		return nil, err
	}

	result, err := b.mem.Write(ctx, entry)
	if err != nil {
		return nil, err
	}

	err = b.mem.Publish(ctx, &core.Event{
		Type: core.EventMarketTickReceived,
		Data: map[string]interface{}{
			"instrument": tick.Instrument,
			"key":        entry.Key,
			"timestamp":  formatTime(tick.Timestamp),
		},
		Source: core.SourceTrading,
		Target: core.SourceAI,
	})
	return result, err
}

// GetBar reads one bar back by instrument and sequence.
func (b *MarketBridge) GetBar(ctx context.Context, instrument string, sequence int64) (*Bar, error) {
	entry, err := b.mem.Read(ctx, core.CategoryMarketData, BarKey(instrument, sequence))
	if err != nil {
		return nil, err
	}
	return BarFromEntry(entry)
}

// GetTick reads one tick back by instrument and sequence.
//
// Ticks live in the cache tier only, so an evicted or expired tick reads
// as not found.
func (b *MarketBridge) GetTick(ctx context.Context, instrument string, sequence int64) (*Tick, error) {
	entry, err := b.mem.Read(ctx, core.CategoryMarketData, TickKey(instrument, sequence))
	if err != nil {
		return nil, err
	}
	return TickFromEntry(entry)
}

// RecentBars lists the newest bars of an instrument, newest first.
func (b *MarketBridge) RecentBars(ctx context.Context, instrument string, limit int) ([]*Bar, error) {
	entries, err := b.mem.List(ctx, core.CategoryMarketData,
		core.WithKeyPrefix(instrument+":bar:"),
		core.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}

	bars := make([]*Bar, 0, len(entries))
	for _, entry := range entries {
		bar, err := BarFromEntry(entry)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}
