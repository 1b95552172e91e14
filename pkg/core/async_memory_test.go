package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trademem "github.com/ainautilus/trademem-go/pkg/core"
)

func setupAsyncTest(t *testing.T) (*trademem.AsyncClient, func()) {
	client, err := trademem.NewAsyncClient(testClientConfig(t))
	require.NoError(t, err)
	require.NotNil(t, client)

	cleanup := func() {
		_ = client.Close()
	}

	return client, cleanup
}

func TestAsyncClient_WriteRead(t *testing.T) {
	client, cleanup := setupAsyncTest(t)
	defer cleanup()

	ctx := context.Background()

	writeResult := <-client.WriteAsync(ctx, &trademem.Entry{
		Category: trademem.CategoryMarketData,
		Key:      "EURUSD:bar:1",
		Payload:  barPayload(),
		Source:   trademem.SourceTrading,
	})
	require.NoError(t, writeResult.Error)
	require.NotNil(t, writeResult.Result)
	assert.True(t, writeResult.Result.Persisted)

	readResult := <-client.ReadAsync(ctx, trademem.CategoryMarketData, "EURUSD:bar:1")
	require.NoError(t, readResult.Error)
	require.NotNil(t, readResult.Entry)
	assert.Equal(t, barPayload(), readResult.Entry.Payload)

	listResult := <-client.ListAsync(ctx, trademem.CategoryMarketData)
	require.NoError(t, listResult.Error)
	assert.Len(t, listResult.Entries, 1)

	require.NoError(t, <-client.DeleteAsync(ctx, trademem.CategoryMarketData, "EURUSD:bar:1"))

	readResult = <-client.ReadAsync(ctx, trademem.CategoryMarketData, "EURUSD:bar:1")
	assert.ErrorIs(t, readResult.Error, trademem.ErrNotFound)
}

func TestAsyncClient_Publish(t *testing.T) {
	client, cleanup := setupAsyncTest(t)
	defer cleanup()

	ctx := context.Background()

	done := make(chan *trademem.Event, 1)
	_, err := client.Subscribe(func(ctx context.Context, event *trademem.Event) error {
		done <- event
		return nil
	}, trademem.WithEventType(trademem.EventTradingSignalGenerated))
	require.NoError(t, err)

	err = <-client.PublishAsync(ctx, &trademem.Event{
		Type:   trademem.EventTradingSignalGenerated,
		Data:   map[string]interface{}{"signal_id": "sig-1"},
		Source: trademem.SourceAI,
	})
	require.NoError(t, err)

	// The publish goroutine has finished, so the handler already ran.
	received := <-done
	assert.Equal(t, "sig-1", received.Data["signal_id"])
}

func TestAsyncClient_Wait(t *testing.T) {
	client, cleanup := setupAsyncTest(t)
	defer cleanup()

	ctx := context.Background()

	channels := make([]<-chan *trademem.AsyncWriteResult, 0, 10)
	for i := 0; i < 10; i++ {
		channels = append(channels, client.WriteAsync(ctx, &trademem.Entry{
			Category: trademem.CategoryMarketData,
			Key:      fmt.Sprintf("EURUSD:bar:%d", i),
			Payload:  barPayload(),
			Source:   trademem.SourceTrading,
		}))
	}

	client.Wait()

	// After Wait every outcome is already buffered.
	for _, ch := range channels {
		result := <-ch
		assert.NoError(t, result.Error)
	}

	listResult := <-client.ListAsync(ctx, trademem.CategoryMarketData)
	require.NoError(t, listResult.Error)
	assert.Len(t, listResult.Entries, 10)
}
