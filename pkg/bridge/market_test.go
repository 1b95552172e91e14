package bridge_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainautilus/trademem-go/pkg/bridge"
	"github.com/ainautilus/trademem-go/pkg/core"
)

func setupBridgeTest(t *testing.T) (*core.Client, func()) {
	config := core.DefaultConfig()
	config.Store.Config = map[string]interface{}{
		"db_path": filepath.Join(t.TempDir(), "test_bridge.db"),
	}
	config.Retention.SweepIntervalSeconds = -1

	client, err := core.NewClient(config)
	require.NoError(t, err)
	require.NotNil(t, client)

	cleanup := func() {
		_ = client.Close()
	}

	return client, cleanup
}

func testBar(sequence int64) *bridge.Bar {
	return &bridge.Bar{
		Instrument: "EURUSD",
		Sequence:   sequence,
		Open:       1.0850,
		High:       1.0871,
		Low:        1.0845,
		Close:      1.0862,
		Volume:     1523.0,
		Timestamp:  time.Date(2026, 3, 2, 14, 30, 0, 500000000, time.UTC),
		BarType:    "1-MINUTE-BID",
	}
}

func testTick(sequence int64) *bridge.Tick {
	return &bridge.Tick{
		Instrument: "EURUSD",
		Sequence:   sequence,
		Bid:        1.0851,
		Ask:        1.0853,
		Last:       1.0852,
		Volume:     250.0,
		Timestamp:  time.Date(2026, 3, 2, 14, 30, 0, 125000000, time.UTC),
	}
}

func TestBarEntry_RoundTrip(t *testing.T) {
	bar := testBar(42)

	entry, err := bridge.BarEntry(bar)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, core.CategoryMarketData, entry.Category)
	assert.Equal(t, "EURUSD:bar:42", entry.Key)
	assert.Equal(t, core.SourceTrading, entry.Source)
	assert.Equal(t, core.MemoryTypeBoth, entry.MemoryType)

	back, err := bridge.BarFromEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, bar, back)
}

func TestBarEntry_Validation(t *testing.T) {
	_, err := bridge.BarEntry(nil)
	assert.Error(t, err)

	bar := testBar(1)
	bar.Instrument = ""
	_, err = bridge.BarEntry(bar)
	assert.Error(t, err)

	bar = testBar(1)
	bar.Timestamp = time.Time{}
	_, err = bridge.BarEntry(bar)
	assert.Error(t, err)
}

func TestBarFromEntry_WrongCategory(t *testing.T) {
	entry := &core.Entry{
		Category: core.CategoryAgentDecision,
		Key:      "momentum_agent:buy_signal:1",
		Payload:  map[string]interface{}{"type": "bar"},
	}
	_, err := bridge.BarFromEntry(entry)
	assert.ErrorIs(t, err, bridge.ErrWrongCategory)

	// A tick entry lives in the same category but is not a bar.
	tickEntry, err := bridge.TickEntry(testTick(1))
	require.NoError(t, err)
	_, err = bridge.BarFromEntry(tickEntry)
	assert.ErrorIs(t, err, bridge.ErrWrongCategory)
}

func TestBarFromEntry_MalformedPayload(t *testing.T) {
	entry, err := bridge.BarEntry(testBar(1))
	require.NoError(t, err)

	delete(entry.Payload, "open")
	_, err = bridge.BarFromEntry(entry)
	assert.ErrorIs(t, err, bridge.ErrMalformedPayload)

	entry, err = bridge.BarEntry(testBar(1))
	require.NoError(t, err)

	entry.Payload["timestamp"] = "not a timestamp"
	_, err = bridge.BarFromEntry(entry)
	assert.ErrorIs(t, err, bridge.ErrMalformedPayload)

	_, err = bridge.BarFromEntry(nil)
	assert.ErrorIs(t, err, bridge.ErrMalformedPayload)
}

func TestTickEntry_RoundTrip(t *testing.T) {
	tick := testTick(7)

	entry, err := bridge.TickEntry(tick)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, core.CategoryMarketData, entry.Category)
	assert.Equal(t, "EURUSD:tick:7", entry.Key)
	assert.Equal(t, core.MemoryTypeCache, entry.MemoryType)

	back, err := bridge.TickFromEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, tick, back)
}

func TestMarketBridge_PutGetBar(t *testing.T) {
	client, cleanup := setupBridgeTest(t)
	defer cleanup()

	ctx := context.Background()
	market := bridge.NewMarketBridge(client)

	var events []*core.Event
	_, err := client.Subscribe(func(ctx context.Context, event *core.Event) error {
		events = append(events, event)
		return nil
	},
		core.WithEventType(core.EventMarketBarReceived),
		core.WithTarget(core.SourceAI),
	)
	require.NoError(t, err)

	bar := testBar(42)
	result, err := market.PutBar(ctx, bar)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Persisted)
	assert.True(t, result.Cached)

	// The AI side is notified synchronously with a reference to the entry.
	require.Len(t, events, 1)
	assert.Equal(t, "EURUSD", events[0].Data["instrument"])
	assert.Equal(t, "EURUSD:bar:42", events[0].Data["key"])

	got, err := market.GetBar(ctx, "EURUSD", 42)
	require.NoError(t, err)
	assert.Equal(t, bar, got)
}

func TestMarketBridge_PutGetBar_DurableCopy(t *testing.T) {
	client, cleanup := setupBridgeTest(t)
	defer cleanup()

	ctx := context.Background()
	market := bridge.NewMarketBridge(client)

	bar := testBar(42)
	_, err := market.PutBar(ctx, bar)
	require.NoError(t, err)

	// The bar survives a cold cache via the durable store.
	entry, err := client.Read(ctx, core.CategoryMarketData, bridge.BarKey("EURUSD", 42),
		core.WithPreferCache(false))
	require.NoError(t, err)

	got, err := bridge.BarFromEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, bar, got)
}

func TestMarketBridge_PutTick(t *testing.T) {
	client, cleanup := setupBridgeTest(t)
	defer cleanup()

	ctx := context.Background()
	market := bridge.NewMarketBridge(client)

	var events []*core.Event
	_, err := client.Subscribe(func(ctx context.Context, event *core.Event) error {
		events = append(events, event)
		return nil
	}, core.WithEventType(core.EventMarketTickReceived))
	require.NoError(t, err)

	tick := testTick(7)
	result, err := market.PutTick(ctx, tick)
	require.NoError(t, err)
	assert.False(t, result.Persisted)
	assert.True(t, result.Cached)

	require.Len(t, events, 1)
	assert.Equal(t, "EURUSD:tick:7", events[0].Data["key"])

	got, err := market.GetTick(ctx, "EURUSD", 7)
	require.NoError(t, err)
	assert.Equal(t, tick, got)

	// Ticks leave no durable trace.
	entries, err := client.List(ctx, core.CategoryMarketData)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMarketBridge_GetBar_NotFound(t *testing.T) {
	client, cleanup := setupBridgeTest(t)
	defer cleanup()

	market := bridge.NewMarketBridge(client)

	_, err := market.GetBar(context.Background(), "EURUSD", 999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMarketBridge_RecentBars(t *testing.T) {
	client, cleanup := setupBridgeTest(t)
	defer cleanup()

	ctx := context.Background()
	market := bridge.NewMarketBridge(client)

	for seq := int64(1); seq <= 3; seq++ {
		bar := testBar(seq)
		bar.Timestamp = bar.Timestamp.Add(time.Duration(seq) * time.Minute)
		_, err := market.PutBar(ctx, bar)
		require.NoError(t, err)
	}
	_, err := market.PutBar(ctx, &bridge.Bar{
		Instrument: "GBPUSD",
		Sequence:   1,
		Close:      1.2650,
		Timestamp:  time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	bars, err := market.RecentBars(ctx, "EURUSD", 10)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, int64(3), bars[0].Sequence)
	assert.Equal(t, int64(1), bars[2].Sequence)
	for _, bar := range bars {
		assert.Equal(t, "EURUSD", bar.Instrument)
	}

	limited, err := market.RecentBars(ctx, "EURUSD", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMarketBridge_PutBar_Invalid(t *testing.T) {
	client, cleanup := setupBridgeTest(t)
	defer cleanup()

	market := bridge.NewMarketBridge(client)

	_, err := market.PutBar(context.Background(), nil)
	assert.Error(t, err)

	_, err = market.PutTick(context.Background(), &bridge.Tick{Instrument: "EURUSD"})
	assert.Error(t, err)
}
