// Package core provides the unified memory client coordinating an AI
// decision subsystem and a trading subsystem.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested entry was not found.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageOperation indicates that a durable store operation failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrCacheUnavailable indicates that no cache backend could serve an
	// operation.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrClientClosed indicates that the client has been closed.
	ErrClientClosed = errors.New("client is closed")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Write",
//	    Err: ErrStorageOperation,
//	}
//	// Error() returns: "trademem: Write: storage operation failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "trademem: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("trademem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Write", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Write", "Read", "Publish")
//   - err: The underlying error to wrap
//
// Returns a MemoryError, or nil if err is nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
