// Package sqlite provides the public API for the SQLite trace store.
// This package exposes the factory function for creating stores while
// keeping implementation details internal.
package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/tracestore/internal/sqlite"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// Option configures a store created by NewStore.
type Option = sqlite.Option

// WithLogger sets the zap logger used for store diagnostics.
func WithLogger(l *zap.Logger) Option { return sqlite.WithLogger(l) }

// NewStore creates a SQLite trace store for cfg.
// The store is not initialized; call Initialize before any other operation.
//
// Example:
//
//	store := sqlite.NewStore(types.Config{DataDir: "/var/lib/traces"})
//	if err := store.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(cfg types.Config, opts ...Option) types.TraceStore {
	return sqlite.NewStore(cfg, opts...)
}

// Open creates a store for cfg and initializes it. On error nothing is left
// open.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (types.TraceStore, error) {
	st := sqlite.NewStore(cfg, opts...)
	if err := st.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
