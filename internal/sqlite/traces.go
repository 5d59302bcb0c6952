package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/tracestore/internal/metrics"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// Store persists one trace with a freshly generated ID and the current local
// timestamp. The returned StoredTrace carries meta as passed (or an empty
// Meta when nil), not its stored text.
func (s *Store) Store(ctx context.Context, prompt, response string, meta types.Meta) (st *types.StoredTrace, err error) {
	start := time.Now()
	defer func() { s.observe("store", start, err) }()

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	meta = meta.OrEmpty()
	metaText, err := meta.Render()
	if err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	ts := types.FormatTimestamp(s.now())

	if _, err := db.ExecContext(ctx, insertTrace, id, prompt, response, metaText, ts); err != nil {
		return nil, types.NewStorageError("store", fmt.Errorf("insert trace %s: %w", id, err))
	}

	s.logger.Info("stored trace", zap.String("trace_id", id))
	return &types.StoredTrace{
		TraceID:   id,
		Prompt:    prompt,
		Response:  response,
		Metadata:  meta,
		Timestamp: ts,
	}, nil
}

// Search returns at most limit traces whose prompt or response contains
// query as a literal, case-sensitive substring, in insertion order. A limit
// of zero or less yields an empty result without querying. An empty query
// matches every trace.
func (s *Store) Search(ctx context.Context, query string, limit int) (traces []types.Trace, err error) {
	start := time.Now()
	defer func() { s.observe("search", start, err) }()

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	traces = []types.Trace{}
	if limit <= 0 {
		return traces, nil
	}

	var rows *sql.Rows
	if query == "" {
		rows, err = db.QueryContext(ctx, selectAllTracesLimit, limit)
	} else {
		rows, err = db.QueryContext(ctx, searchTraces, query, query, limit)
	}
	if err != nil {
		return nil, types.NewStorageError("search", fmt.Errorf("query traces: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		tr, err := scanTrace(rows)
		if err != nil {
			return nil, types.NewStorageError("search", err)
		}
		traces = append(traces, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStorageError("search", fmt.Errorf("iterate traces: %w", err))
	}

	s.logger.Info("searched traces", zap.String("query", query), zap.Int("matches", len(traces)))
	return traces, nil
}

// Get returns the trace with the given ID. A missing trace yields
// types.ErrNotFound, which is an expected outcome rather than a fault.
func (s *Store) Get(ctx context.Context, traceID string) (tr *types.Trace, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	tr, err = scanTrace(db.QueryRowContext(ctx, selectTraceByID, traceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, types.NewStorageError("get", err)
	}

	s.logger.Info("retrieved trace", zap.String("trace_id", traceID))
	return tr, nil
}

// Count returns the number of stored traces.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, countTraces).Scan(&n); err != nil {
		return 0, types.NewStorageError("count", fmt.Errorf("count traces: %w", err))
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrace(row rowScanner) (*types.Trace, error) {
	var tr types.Trace
	err := row.Scan(&tr.TraceID, &tr.Prompt, &tr.Response, &tr.Metadata, &tr.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning trace: %w", err)
	}
	return &tr, nil
}

// observe records metrics for a finished operation.
func (s *Store) observe(op string, start time.Time, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, types.ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case err != nil:
		outcome = metrics.OutcomeError
		s.logger.Warn("trace store operation failed", zap.String("op", op), zap.Error(err))
	}
	s.metrics.Observe(op, start, outcome)
}
