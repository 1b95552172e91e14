package core_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trademem "github.com/ainautilus/trademem-go/pkg/core"
)

func writeBars(t *testing.T, client *trademem.Client, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		_, err := client.Write(ctx, &trademem.Entry{
			Category: trademem.CategoryMarketData,
			Key:      fmt.Sprintf("EURUSD:bar:%d", i),
			Payload:  barPayload(),
			Source:   trademem.SourceTrading,
		})
		require.NoError(t, err)
	}
}

func TestListStream(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	writeBars(t, client, 8)

	resultChan := client.ListStream(context.Background(), trademem.CategoryMarketData, 3)

	totalReceived := 0
	batchCount := 0
	lastBatchIndex := -1
	sawLastBatch := false

	for result := range resultChan {
		if result.Error != nil {
			t.Fatalf("ListStream error: %v", result.Error)
		}

		assert.NotNil(t, result.Entries)
		totalReceived += len(result.Entries)
		batchCount++

		// Verify batch index is sequential
		assert.Equal(t, lastBatchIndex+1, result.BatchIndex)
		lastBatchIndex = result.BatchIndex

		// Verify batch size (except possibly the last batch)
		if !result.IsLastBatch {
			assert.Equal(t, 3, len(result.Entries))
		} else {
			sawLastBatch = true
		}
	}

	assert.Equal(t, 8, totalReceived)
	assert.Equal(t, 3, batchCount)
	assert.True(t, sawLastBatch)
}

func TestListStream_Limit(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	writeBars(t, client, 8)

	resultChan := client.ListStream(context.Background(), trademem.CategoryMarketData, 2,
		trademem.WithLimit(5),
	)

	totalReceived := 0
	for result := range resultChan {
		if result.Error != nil {
			t.Fatalf("ListStream error: %v", result.Error)
		}
		totalReceived += len(result.Entries)
	}

	// The limit caps the stream total, not the batch size.
	assert.Equal(t, 5, totalReceived)
}

func TestListStream_Filtered(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	ctx := context.Background()
	writeBars(t, client, 4)

	_, err := client.Write(ctx, &trademem.Entry{
		Category: trademem.CategoryMarketData,
		Key:      "GBPUSD:bar:0",
		Payload:  barPayload(),
		Source:   trademem.SourceTrading,
	})
	require.NoError(t, err)

	resultChan := client.ListStream(ctx, trademem.CategoryMarketData, 2,
		trademem.WithKeyPrefix("EURUSD:"),
	)

	totalReceived := 0
	for result := range resultChan {
		if result.Error != nil {
			t.Fatalf("ListStream error: %v", result.Error)
		}
		for _, entry := range result.Entries {
			assert.Contains(t, entry.Key, "EURUSD:")
		}
		totalReceived += len(result.Entries)
	}

	assert.Equal(t, 4, totalReceived)
}

func TestListStream_InvalidCategory(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	resultChan := client.ListStream(context.Background(), "weather_data", 10)

	result, ok := <-resultChan
	require.True(t, ok)
	assert.ErrorIs(t, result.Error, trademem.ErrInvalidInput)

	_, ok = <-resultChan
	assert.False(t, ok)
}

func TestListStream_ContextCancellation(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	writeBars(t, client, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultChan := client.ListStream(ctx, trademem.CategoryMarketData, 2)

	// Cancel context after receiving first batch
	receivedFirst := false
	for result := range resultChan {
		if result.Error != nil {
			// Context cancellation error is expected
			assert.ErrorIs(t, result.Error, context.Canceled)
			break
		}
		if !receivedFirst {
			receivedFirst = true
			cancel()
		}
	}
	assert.True(t, receivedFirst)
}

func TestBatchWrite(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	ctx := context.Background()

	entries := make([]*trademem.Entry, 0, 5)
	for i := 0; i < 5; i++ {
		entries = append(entries, &trademem.Entry{
			Category: trademem.CategoryMarketData,
			Key:      fmt.Sprintf("EURUSD:bar:%d", i),
			Payload:  barPayload(),
			Source:   trademem.SourceTrading,
		})
	}

	result, err := client.BatchWrite(ctx, entries)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.WrittenCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Len(t, result.Written, 5)
	assert.Empty(t, result.Failed)
	for _, written := range result.Written {
		assert.True(t, written.Persisted)
	}

	listed, err := client.List(ctx, trademem.CategoryMarketData)
	require.NoError(t, err)
	assert.Len(t, listed, 5)
}

func TestBatchWrite_Empty(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	result, err := client.BatchWrite(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.WrittenCount)
	assert.Equal(t, 0, result.FailedCount)
}

func TestBatchWrite_WithFailures(t *testing.T) {
	client, cleanup := setupClientTest(t)
	defer cleanup()

	entries := []*trademem.Entry{
		{
			Category: trademem.CategoryMarketData,
			Key:      "EURUSD:bar:1",
			Payload:  barPayload(),
			Source:   trademem.SourceTrading,
		},
		{
			Category: trademem.CategoryMarketData,
			Key:      "",
			Payload:  barPayload(),
			Source:   trademem.SourceTrading,
		},
		{
			Category: trademem.CategoryMarketData,
			Key:      "EURUSD:bar:2",
			Payload:  barPayload(),
			Source:   trademem.SourceTrading,
		},
	}

	result, err := client.BatchWrite(context.Background(), entries)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.WrittenCount)
	require.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.ErrorIs(t, result.Failed[0].Error, trademem.ErrInvalidInput)
}
