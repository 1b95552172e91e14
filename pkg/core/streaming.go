package core

import (
	"context"
	"sync"

	"github.com/ainautilus/trademem-go/pkg/storage"
)

// StreamingListResult contains a batch of entries from a streaming list.
type StreamingListResult struct {
	// Entries is a batch of entries.
	Entries []*Entry

	// BatchIndex is the index of this batch (0-based).
	BatchIndex int

	// IsLastBatch indicates whether this is the last batch.
	IsLastBatch bool

	// Error contains any error that occurred during streaming (if any).
	Error error
}

// ListStream performs streaming retrieval of a category for large datasets.
//
// Instead of loading all entries into memory at once, this method streams
// results in batches through a channel, making it suitable for processing a
// long market data history without exhausting system resources. Batches
// read the durable store with offset pagination.
//
// Parameters:
//   - ctx: Context for cancellation
//   - category: The entry category
//   - batchSize: Number of entries per batch
//   - opts: Optional filters (Source, KeyPrefix, Since, MinConfidence, Limit)
//
// Returns a channel that receives StreamingListResult batches.
// The channel is closed when all entries have been sent or an error occurs.
//
// Example:
//
//	resultChan := client.ListStream(ctx, core.CategoryMarketData,
//	    100, // batch size
//	    core.WithKeyPrefix("EURUSD:"),
//	    core.WithLimit(1000), // maximum total results
//	)
//
//	for result := range resultChan {
//	    if result.Error != nil {
//	        log.Fatal(result.Error)
//	    }
//	    for _, entry := range result.Entries {
//	        processEntry(entry)
//	    }
//	}
func (c *Client) ListStream(ctx context.Context, category string, batchSize int, opts ...ListOption) <-chan *StreamingListResult {
	resultChan := make(chan *StreamingListResult, 1)

	go func() {
		defer close(resultChan)

		if err := c.guard(); err != nil {
			resultChan <- &StreamingListResult{
				Error: NewMemoryError("ListStream", err),
			}
			return
		}
		if !ValidCategory(category) {
			resultChan <- &StreamingListResult{
				Error: NewMemoryError("ListStream", ErrInvalidInput),
			}
			return
		}
		if batchSize <= 0 {
			batchSize = 100
		}

		listOpts := applyListOptions(opts)

		// Determine maximum results
		maxResults := listOpts.limit
		if maxResults <= 0 {
			maxResults = 10000 // Default maximum for streaming
		}

		storageOpts := &storage.ListOptions{
			Source:        listOpts.source,
			KeyPrefix:     listOpts.keyPrefix,
			Since:         listOpts.since,
			MinConfidence: listOpts.minConfidence,
		}

		batchIndex := 0
		offset := 0

		for {
			// Check context cancellation
			select {
			case <-ctx.Done():
				resultChan <- &StreamingListResult{
					BatchIndex: batchIndex,
					Error:      ctx.Err(),
				}
				return
			default:
			}

			remaining := maxResults - offset
			if remaining <= 0 {
				break
			}
			storageOpts.Offset = offset
			storageOpts.Limit = batchSize
			if remaining < batchSize {
				storageOpts.Limit = remaining
			}

			entries, err := c.store.List(ctx, category, storageOpts)
			if err != nil {
				resultChan <- &StreamingListResult{
					BatchIndex: batchIndex,
					Error:      NewMemoryError("ListStream", err),
				}
				return
			}

			// If no more results, we're done
			if len(entries) == 0 {
				break
			}

			isLastBatch := len(entries) < storageOpts.Limit || offset+len(entries) >= maxResults

			resultChan <- &StreamingListResult{
				Entries:     fromStorageEntries(entries),
				BatchIndex:  batchIndex,
				IsLastBatch: isLastBatch,
			}

			batchIndex++
			offset += len(entries)

			if isLastBatch {
				break
			}
		}
	}()

	return resultChan
}

// BatchWriteResult contains the result of a batch write operation.
type BatchWriteResult struct {
	// Written contains the outcomes of successful writes.
	Written []*WriteResult

	// Failed contains entries that failed to be written, along with their
	// errors.
	Failed []BatchWriteError

	// Total is the total number of items in the batch.
	Total int

	// WrittenCount is the number of successful writes.
	WrittenCount int

	// FailedCount is the number of failed writes.
	FailedCount int
}

// BatchWriteError contains information about a failed batch write.
type BatchWriteError struct {
	// Category and Key identify the entry that failed.
	Category string
	Key      string

	// Error is the error that occurred.
	Error error

	// Index is the index of the item in the original batch.
	Index int
}

// BatchWrite stores multiple entries in a single batch operation.
//
// Entries are written concurrently within the batch for better throughput,
// bounded by an internal concurrency limit. Each entry routes per its own
// write policy, exactly as in Write.
//
// Parameters:
//   - ctx: Context for cancellation
//   - entries: Slice of entries to store
//
// Returns a BatchWriteResult containing write outcomes and any failures.
//
// Example:
//
//	result, err := client.BatchWrite(ctx, entries)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Wrote %d/%d entries\n", result.WrittenCount, result.Total)
func (c *Client) BatchWrite(ctx context.Context, entries []*Entry) (*BatchWriteResult, error) {
	if len(entries) == 0 {
		return &BatchWriteResult{
			Total:        0,
			WrittenCount: 0,
			FailedCount:  0,
		}, nil
	}

	result := &BatchWriteResult{
		Total:        len(entries),
		Written:      make([]*WriteResult, 0, len(entries)),
		Failed:       make([]BatchWriteError, 0),
		WrittenCount: 0,
		FailedCount:  0,
	}

	// Use a semaphore to limit concurrent operations
	const maxConcurrency = 10
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, entry := range entries {
		wg.Add(1)
		sem <- struct{}{} // Acquire semaphore

		go func(index int, e *Entry) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore

			var category, key string
			if e != nil {
				category, key = e.Category, e.Key
			}

			// Check context cancellation
			select {
			case <-ctx.Done():
				mu.Lock()
				result.Failed = append(result.Failed, BatchWriteError{
					Category: category,
					Key:      key,
					Error:    ctx.Err(),
					Index:    index,
				})
				result.FailedCount++
				mu.Unlock()
				return
			default:
			}

			writeResult, err := c.Write(ctx, e)
			if err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, BatchWriteError{
					Category: category,
					Key:      key,
					Error:    err,
					Index:    index,
				})
				result.FailedCount++
				mu.Unlock()
				return
			}

			mu.Lock()
			result.Written = append(result.Written, writeResult)
			result.WrittenCount++
			mu.Unlock()
		}(i, entry)
	}

	wg.Wait()

	return result, nil
}
