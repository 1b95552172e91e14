package core

import (
	"context"
	"sync"
)

// AsyncClient provides asynchronous memory operations.
//
// It wraps the synchronous Client and executes all operations in separate
// goroutines, which suits producers that must not stall on storage latency,
// such as a market data feed handler.
//
// All async methods return channels that will receive the results when
// operations complete. The client tracks all goroutines and provides Wait()
// to ensure all operations finish.
//
// Example:
//
//	asyncClient, _ := core.NewAsyncClient(config)
//	defer asyncClient.Close()
//
//	resultChan := asyncClient.WriteAsync(ctx, entry)
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// NewAsyncClient creates a new asynchronous memory client.
//
// Parameters:
//   - cfg: Client configuration
//
// Returns:
//   - *AsyncClient: The asynchronous client instance
//   - error: Error if configuration is invalid or initialization fails
func NewAsyncClient(cfg *Config) (*AsyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AsyncClient{
		Client: client,
	}, nil
}

// WriteAsync stores an entry asynchronously.
//
// The operation executes in a separate goroutine and returns its outcome
// via a channel.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - entry: The entry to store
//
// Returns:
//   - <-chan *AsyncWriteResult: Channel that receives the write outcome and error
func (ac *AsyncClient) WriteAsync(ctx context.Context, entry *Entry) <-chan *AsyncWriteResult {
	resultChan := make(chan *AsyncWriteResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		result, err := ac.Write(ctx, entry)
		resultChan <- &AsyncWriteResult{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// ReadAsync retrieves an entry asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - category: The entry category
//   - key: The entry key
//   - opts: Optional read options (PreferCache)
//
// Returns:
//   - <-chan *AsyncReadResult: Channel that receives the entry and error
func (ac *AsyncClient) ReadAsync(ctx context.Context, category, key string, opts ...ReadOption) <-chan *AsyncReadResult {
	resultChan := make(chan *AsyncReadResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		entry, err := ac.Read(ctx, category, key, opts...)
		resultChan <- &AsyncReadResult{
			Entry: entry,
			Error: err,
		}
		close(resultChan)
	}()

	return resultChan
}

// ListAsync retrieves durable entries of a category asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - category: The entry category
//   - opts: Optional filters (Source, KeyPrefix, Since, MinConfidence, Limit)
//
// Returns:
//   - <-chan *AsyncListResult: Channel that receives the entries and error
func (ac *AsyncClient) ListAsync(ctx context.Context, category string, opts ...ListOption) <-chan *AsyncListResult {
	resultChan := make(chan *AsyncListResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		entries, err := ac.List(ctx, category, opts...)
		resultChan <- &AsyncListResult{
			Entries: entries,
			Error:   err,
		}
		close(resultChan)
	}()

	return resultChan
}

// PublishAsync publishes an event asynchronously.
//
// Handlers still run synchronously, but on the background goroutine instead
// of the caller's.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - event: The event to publish
//
// Returns:
//   - <-chan error: Channel that receives the publish error (nil on success)
func (ac *AsyncClient) PublishAsync(ctx context.Context, event *Event) <-chan error {
	errChan := make(chan error, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		errChan <- ac.Publish(ctx, event)
		close(errChan)
	}()

	return errChan
}

// DeleteAsync removes an entry asynchronously.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - category: The entry category
//   - key: The entry key
//
// Returns:
//   - <-chan error: Channel that receives the delete error (nil on success)
func (ac *AsyncClient) DeleteAsync(ctx context.Context, category, key string) <-chan error {
	errChan := make(chan error, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		errChan <- ac.Delete(ctx, category, key)
		close(errChan)
	}()

	return errChan
}

// Wait waits for all asynchronous operations to complete.
//
// This method blocks until all goroutines started by async methods have
// finished. It should be called before program exit to ensure all
// operations complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close closes the asynchronous client.
//
// It first waits for all asynchronous operations to complete, then closes
// the underlying client.
func (ac *AsyncClient) Close() error {
	ac.Wait()
	return ac.Client.Close()
}

// AsyncWriteResult contains the result of an asynchronous write operation.
type AsyncWriteResult struct {
	// Result is the write outcome (nil if an error occurred).
	Result *WriteResult

	// Error is the error returned by the operation (nil on success).
	Error error
}

// AsyncReadResult contains the result of an asynchronous read operation.
type AsyncReadResult struct {
	// Entry is the entry returned by the operation (nil if an error occurred).
	Entry *Entry

	// Error is the error returned by the operation (nil on success).
	Error error
}

// AsyncListResult contains the result of an asynchronous list operation.
type AsyncListResult struct {
	// Entries is the list of matching entries.
	Entries []*Entry

	// Error is the error returned by the operation (nil on success).
	Error error
}
