package sqlite

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// newTestStore returns an initialized store in a fresh temp directory.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := NewStore(types.Config{DataDir: t.TempDir()}, opts...)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

// sequentialIDs yields trace-0001, trace-0002, ...
func sequentialIDs() IDFunc {
	var n atomic.Int64
	return func() (string, error) {
		return fmt.Sprintf("trace-%04d", n.Add(1)), nil
	}
}

// fixedClock always returns ts.
func fixedClock(ts time.Time) ClockFunc {
	return func() time.Time { return ts }
}

func mustStore(t *testing.T, s *Store, prompt, response string, meta types.Meta) *types.StoredTrace {
	t.Helper()
	st, err := s.Store(context.Background(), prompt, response, meta)
	require.NoError(t, err)
	return st
}
