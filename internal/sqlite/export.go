package sqlite

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// ExportAll writes every trace, in insertion order, to the configured CSV
// export file, replacing any previous export. The file starts with a header
// row of types.ExportColumns. Returns the destination and the row count.
func (s *Store) ExportAll(ctx context.Context) (path string, count int, err error) {
	start := time.Now()
	defer func() { s.observe("export", start, err) }()

	path = s.config.ExportPath()
	count, err = s.exportTo(ctx, path, func(w io.Writer, next func() (*types.Trace, error)) (int, error) {
		cw := csv.NewWriter(w)
		if err := cw.Write(types.ExportColumns); err != nil {
			return 0, fmt.Errorf("writing header: %w", err)
		}
		n := 0
		for {
			tr, err := next()
			if err != nil {
				return n, err
			}
			if tr == nil {
				break
			}
			if err := cw.Write(tr.Record()); err != nil {
				return n, fmt.Errorf("writing row: %w", err)
			}
			n++
		}
		cw.Flush()
		return n, cw.Error()
	})
	if err != nil {
		return "", 0, err
	}

	s.metrics.SetExported(count)
	s.logger.Info("exported traces", zap.String("format", "csv"), zap.Int("count", count), zap.String("path", path))
	return path, count, nil
}

// ExportJSONL writes every trace as one JSON object per line to the JSONL
// export file, replacing any previous export.
func (s *Store) ExportJSONL(ctx context.Context) (path string, count int, err error) {
	start := time.Now()
	defer func() { s.observe("export_jsonl", start, err) }()

	path = s.config.JSONLExportPath()
	count, err = s.exportTo(ctx, path, func(w io.Writer, next func() (*types.Trace, error)) (int, error) {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		n := 0
		for {
			tr, err := next()
			if err != nil {
				return n, err
			}
			if tr == nil {
				return n, nil
			}
			if err := enc.Encode(tr); err != nil {
				return n, fmt.Errorf("writing record: %w", err)
			}
			n++
		}
	})
	if err != nil {
		return "", 0, err
	}

	s.metrics.SetExported(count)
	s.logger.Info("exported traces", zap.String("format", "jsonl"), zap.Int("count", count), zap.String("path", path))
	return path, count, nil
}

// exportTo streams all traces through encode into an atomically replaced
// file at path. next returns nil, nil after the last trace.
func (s *Store) exportTo(ctx context.Context, path string, encode func(w io.Writer, next func() (*types.Trace, error)) (int, error)) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	rows, err := db.QueryContext(ctx, selectAllTraces)
	if err != nil {
		return 0, types.NewStorageError("export", fmt.Errorf("query traces: %w", err))
	}
	defer rows.Close()

	next := func() (*types.Trace, error) {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, fmt.Errorf("iterate traces: %w", err)
			}
			return nil, nil
		}
		return scanTrace(rows)
	}

	var count int
	err = writeAtomic(path, func(w io.Writer) error {
		n, err := encode(w, next)
		count = n
		return err
	})
	if err != nil {
		return 0, types.NewStorageError("export", err)
	}
	return count, nil
}

// writeAtomic writes a file using the temp-file, fsync, rename pattern so a
// reader never sees a partially written export.
func writeAtomic(path string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	if err := fill(w); err != nil {
		return fail(err)
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("setting permissions: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
