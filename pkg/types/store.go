package types

import (
	"context"
	"errors"
	"fmt"
)

// TraceStore records, retrieves, and exports traces.
// Traces are immutable once stored; there is no update or delete.
type TraceStore interface {
	// Initialize prepares durable storage. Safe to call more than once;
	// existing traces are never erased.
	Initialize(ctx context.Context) error

	// Store assigns a new trace ID and timestamp and persists one trace.
	// A nil meta is stored as an empty mapping.
	Store(ctx context.Context, prompt, response string, meta Meta) (*StoredTrace, error)

	// Search returns at most limit traces whose prompt or response contains
	// query, in insertion order.
	Search(ctx context.Context, query string, limit int) ([]Trace, error)

	// Get returns the trace with the given ID, or ErrNotFound.
	Get(ctx context.Context, traceID string) (*Trace, error)

	// ExportAll writes every trace to the CSV export file and returns its
	// path and the number of rows written.
	ExportAll(ctx context.Context) (string, int, error)

	// Close releases the underlying storage handle. Idempotent.
	Close() error
}

// Store lifecycle and lookup errors.
var (
	ErrNotFound       = errors.New("trace not found")
	ErrNotInitialized = errors.New("trace store is not initialized")
	ErrStorageFault   = errors.New("storage fault")
)

// StorageError reports a durable read or write that could not complete.
// errors.Is(err, ErrStorageFault) holds for every StorageError.
type StorageError struct {
	Op  string // store, search, get, export, initialize
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFault, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorageFault as a match so callers need not type-assert.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFault
}

// NewStorageError wraps err as a StorageError for op. Returns nil for a nil err.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
