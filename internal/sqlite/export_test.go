package sqlite

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/tracestore/pkg/types"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportAll_EmptyTable(t *testing.T) {
	s := newTestStore(t)

	path, count, err := s.ExportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, filepath.Join(s.Config().DataDir, types.DefaultExportFile), path)

	records := readCSV(t, path)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"trace_id", "prompt", "response", "metadata", "timestamp"}, records[0])
}

func TestExportAll_RowsAndQuoting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithIDFunc(sequentialIDs()))

	stored := []*types.StoredTrace{
		mustStore(t, s, "plain", "text", nil),
		mustStore(t, s, "comma, separated", "line\nbreak", types.Meta{"q": `say "hi"`}),
		mustStore(t, s, `"quoted"`, "", types.Meta{"n": 3}),
	}

	path, count, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(stored), count)

	records := readCSV(t, path)
	require.Len(t, records, len(stored)+1)
	assert.Equal(t, types.ExportColumns, records[0])

	for i, st := range stored {
		got, err := s.Get(ctx, st.TraceID)
		require.NoError(t, err)
		assert.Equal(t, got.Record(), records[i+1])
	}
}

func TestExportAll_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, os.WriteFile(s.Config().ExportPath(), []byte("stale content that is longer than the export\n"), 0o644))

	mustStore(t, s, "p", "r", nil)
	path, count, err := s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, readCSV(t, path), 2)

	mustStore(t, s, "p2", "r2", nil)
	_, count, err = s.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, readCSV(t, path), 3)

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(s.Config().DataDir, ".export-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExportAll_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(types.Config{DataDir: dir, ExportFile: "out.csv"})
	require.NoError(t, s.Initialize(context.Background()))
	defer s.Close()

	// A non-empty directory at the destination makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out.csv", "child"), 0o755))

	_, _, err := s.ExportAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStorageFault), "expected storage fault, got %v", err)
}

func TestExportJSONL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := mustStore(t, s, "a", "1", types.Meta{"k": "v"})
	b := mustStore(t, s, "b", "2", nil)

	path, count, err := s.ExportJSONL(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, s.Config().JSONLExportPath(), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []types.Trace
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var tr types.Trace
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &tr))
		got = append(got, tr)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	assert.Equal(t, a.TraceID, got[0].TraceID)
	assert.Equal(t, `{"k":"v"}`, got[0].Metadata)
	assert.Equal(t, b.TraceID, got[1].TraceID)
	assert.Equal(t, "{}", got[1].Metadata)
}
