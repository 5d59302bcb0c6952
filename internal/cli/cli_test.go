package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/tracestore/internal/paths"
	"github.com/mesh-intelligence/tracestore/pkg/tracestore"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// cliEnv isolates one CLI invocation sequence in temporary directories.
type cliEnv struct {
	ConfigDir string
	DataDir   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv(paths.EnvConfigDir, "")
	t.Setenv(paths.EnvDataDir, "")
	t.Setenv("TRACESTORE_DATABASE_FILE", "")
	t.Setenv("TRACESTORE_EXPORT_FILE", "")
	t.Setenv("TRACESTORE_METRICS_ADDR", "")
	t.Setenv("TRACESTORE_LOG_LEVEL", "error")

	root := t.TempDir()
	return &cliEnv{
		ConfigDir: filepath.Join(root, "config"),
		DataDir:   filepath.Join(root, "data"),
	}
}

// run executes the root command in-process and returns its stdout.
// --data-dir is passed only when e.DataDir is set.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	full := []string{"--config-dir", e.ConfigDir}
	if e.DataDir != "" {
		full = append(full, "--data-dir", e.DataDir)
	}
	full = append(full, args...)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(full)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, "tracestore %v", args)
	return out
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "version")
	assert.Contains(t, out, "tracestore v"+tracestore.Version)
}

func TestInit(t *testing.T) {
	t.Run("creates config and database", func(t *testing.T) {
		env := newCLIEnv(t)
		out := env.mustRun(t, "init")

		dbPath := filepath.Join(env.DataDir, types.DefaultDatabaseFile)
		assert.Contains(t, out, "Trace store initialized at "+dbPath)
		assert.FileExists(t, dbPath)

		data, err := os.ReadFile(filepath.Join(env.ConfigDir, "config.yaml"))
		require.NoError(t, err)
		var cfg configFile
		require.NoError(t, yaml.Unmarshal(data, &cfg))
		assert.Equal(t, env.DataDir, cfg.DataDir)
		assert.Equal(t, types.DefaultDatabaseFile, cfg.DatabaseFile)
		assert.Equal(t, types.DefaultExportFile, cfg.ExportFile)
	})

	t.Run("is idempotent and keeps an existing config", func(t *testing.T) {
		env := newCLIEnv(t)
		require.NoError(t, os.MkdirAll(env.ConfigDir, 0o755))
		custom := []byte("export_file: custom.csv\n")
		require.NoError(t, os.WriteFile(filepath.Join(env.ConfigDir, "config.yaml"), custom, 0o644))

		env.mustRun(t, "init")
		env.mustRun(t, "store", "p", "r")
		out := env.mustRun(t, "init")
		assert.NotContains(t, out, "Wrote default configuration")

		data, err := os.ReadFile(filepath.Join(env.ConfigDir, "config.yaml"))
		require.NoError(t, err)
		assert.Equal(t, custom, data)

		out = env.mustRun(t, "--json", "export")
		var res map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, float64(1), res["count"], "re-initializing must not erase rows")
		assert.Equal(t, filepath.Join(env.DataDir, "custom.csv"), res["exported_file"])
	})

	t.Run("unusable data directory is a system error", func(t *testing.T) {
		env := newCLIEnv(t)
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))
		env.DataDir = filepath.Join(blocker, "data")

		_, err := env.run(t, "", "init")
		require.Error(t, err)
		assert.Equal(t, exitSysError, exitCode(err))
	})
}

func TestStoreAndGet(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "--json", "store", "What is 2+2?", "4", "--meta", `{"model":"gpt-4"}`)
	var stored types.StoredTrace
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	assert.Equal(t, "What is 2+2?", stored.Prompt)
	assert.Equal(t, types.Meta{"model": "gpt-4"}, stored.Metadata)
	require.NotEmpty(t, stored.TraceID)

	out = env.mustRun(t, "--json", "get", stored.TraceID)
	var got types.Trace
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, types.Trace{
		TraceID:   stored.TraceID,
		Prompt:    "What is 2+2?",
		Response:  "4",
		Metadata:  `{"model":"gpt-4"}`,
		Timestamp: stored.Timestamp,
	}, got)

	out = env.mustRun(t, "get", stored.TraceID)
	assert.Contains(t, out, "trace_id:  "+stored.TraceID)
	assert.Contains(t, out, "metadata:  {\"model\":\"gpt-4\"}")

	out = env.mustRun(t, "store", "hello", "world")
	assert.Len(t, strings.TrimSpace(out), 36, "text mode prints the bare trace id")
}

func TestStore_InvalidMeta(t *testing.T) {
	env := newCLIEnv(t)
	for _, meta := range []string{"not json", "[1,2]", `"text"`} {
		_, err := env.run(t, "", "store", "p", "r", "--meta", meta)
		require.Error(t, err, meta)
		assert.Equal(t, exitUserError, exitCode(err), meta)
	}
}

func TestGet_NotFound(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "init")

	_, err := env.run(t, "", "get", "no-such-id")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
	assert.Contains(t, err.Error(), `trace "no-such-id" not found`)
}

func TestSearch(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "store", "apple pie", "yum")
	env.mustRun(t, "store", "banana", "an apple a day")
	env.mustRun(t, "store", "cherry", "tart")
	env.mustRun(t, "store", "Apple", "capitalised")

	search := func(args ...string) []types.Trace {
		t.Helper()
		out := env.mustRun(t, append([]string{"--json", "search"}, args...)...)
		var traces []types.Trace
		require.NoError(t, json.Unmarshal([]byte(out), &traces))
		return traces
	}

	got := search("apple")
	require.Len(t, got, 2)
	assert.Equal(t, "apple pie", got[0].Prompt)
	assert.Equal(t, "banana", got[1].Prompt)

	assert.Len(t, search("apple", "--limit", "1"), 1)
	assert.Empty(t, search("apple", "--limit", "0"))
	assert.Len(t, search(""), 4)

	out := env.mustRun(t, "search", "cherry")
	assert.Contains(t, out, "TRACE ID")
	assert.Contains(t, out, "cherry")
}

func TestExport(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "store", "p1", "r1")
	env.mustRun(t, "store", "p2", "r2", "--meta", `{"n":2}`)

	out := env.mustRun(t, "export")
	csvPath := filepath.Join(env.DataDir, types.DefaultExportFile)
	assert.Equal(t, fmt.Sprintf("Exported 2 traces to %s\n", csvPath), out)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "trace_id,prompt,response,metadata,timestamp\n"))

	out = env.mustRun(t, "--json", "export", "--format", "jsonl")
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	jsonlPath := filepath.Join(env.DataDir, types.DefaultJSONLExportFile)
	assert.Equal(t, jsonlPath, res["exported_file"])
	assert.Equal(t, float64(2), res["count"])

	f, err := os.Open(jsonlPath)
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var tr types.Trace
		require.NoError(t, json.Unmarshal(sc.Bytes(), &tr))
		lines++
	}
	assert.Equal(t, 2, lines)

	_, err = env.run(t, "", "export", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestConfig_Precedence(t *testing.T) {
	env := newCLIEnv(t)
	env.DataDir = ""
	require.NoError(t, os.MkdirAll(env.ConfigDir, 0o755))
	cfgPath := filepath.Join(env.ConfigDir, "config.yaml")

	fromYAML := filepath.Join(t.TempDir(), "yaml")
	fromEnv := filepath.Join(t.TempDir(), "env")
	fromFlag := filepath.Join(t.TempDir(), "flag")

	resolved := func(args ...string) settings {
		t.Helper()
		out := env.mustRun(t, append([]string{"--json", "config"}, args...)...)
		var s settings
		require.NoError(t, json.Unmarshal([]byte(out), &s))
		return s
	}

	t.Setenv(paths.EnvDataDir, fromEnv)
	s := resolved()
	assert.Equal(t, fromEnv, s.DataDir, "env applies when config.yaml is absent")
	assert.Empty(t, s.ConfigFile)
	assert.Equal(t, types.DefaultDatabaseFile, s.DatabaseFile)

	yamlBody := fmt.Sprintf("data_dir: %s\nlog_level: warn\ndatabase_file: other.db\n", fromYAML)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlBody), 0o644))
	s = resolved()
	assert.Equal(t, fromYAML, s.DataDir, "config.yaml beats env")
	assert.Equal(t, cfgPath, s.ConfigFile)
	assert.Equal(t, "other.db", s.DatabaseFile)
	assert.Equal(t, "error", s.LogLevel, "TRACESTORE_LOG_LEVEL beats config.yaml")

	s = resolved("--data-dir", fromFlag, "--log-level", "debug")
	assert.Equal(t, fromFlag, s.DataDir, "flag beats config.yaml")
	assert.Equal(t, "debug", s.LogLevel)

	out := env.mustRun(t, "config")
	assert.Contains(t, out, "data_dir: "+fromYAML)
}

func TestConfig_MalformedYAML(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.MkdirAll(env.ConfigDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.ConfigDir, "config.yaml"), []byte("data_dir: [unterminated\n"), 0o644))

	_, err := env.run(t, "", "config")
	require.Error(t, err)
	assert.Equal(t, exitSysError, exitCode(err))
}

func TestServe(t *testing.T) {
	env := newCLIEnv(t)
	stdin := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"store_trace","arguments":{"prompt":"hi","response":"there"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"search_traces","arguments":{"query":"hi"}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"export_traces_to_csv","arguments":{}}}`,
	}, "\n") + "\n"

	for _, args := range [][]string{
		{"serve"},
		{"serve", "--metrics-addr", "127.0.0.1:0"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			env.DataDir = t.TempDir()
			out, err := env.run(t, stdin, args...)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			require.Len(t, lines, 4, "the notification gets no response")

			var resp struct {
				ID     int `json:"id"`
				Result struct {
					IsError           bool           `json:"isError"`
					StructuredContent map[string]any `json:"structuredContent"`
				} `json:"result"`
			}
			require.NoError(t, json.Unmarshal([]byte(lines[3]), &resp))
			assert.Equal(t, 4, resp.ID)
			assert.False(t, resp.Result.IsError)
			assert.Equal(t, float64(1), resp.Result.StructuredContent["count"])
			assert.FileExists(t, filepath.Join(env.DataDir, types.DefaultExportFile))
		})
	}
}

func TestExitCode(t *testing.T) {
	base := errors.New("boom")
	assert.Equal(t, exitSuccess, exitCode(nil))
	assert.Equal(t, exitUserError, exitCode(base))
	assert.Equal(t, exitUserError, exitCode(userError(base)))
	assert.Equal(t, exitSysError, exitCode(sysError(base)))
	assert.Equal(t, exitSysError, exitCode(fmt.Errorf("wrapped: %w", sysError(base))))
	assert.ErrorIs(t, sysError(base), base)
}
