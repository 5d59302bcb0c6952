package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// Tool names.
const (
	ToolStoreTrace  = "store_trace"
	ToolSearch      = "search_traces"
	ToolGetTrace    = "get_trace"
	ToolExportCSV   = "export_traces_to_csv"
	defaultLimit    = 10
	notFoundMessage = "Trace not found"
)

var errUnknownTool = errors.New("unknown tool")

// initTools defines schemas and descriptions surfaced to MCP clients.
func (srv *Server) initTools() {
	srv.tools = []ToolDesc{
		{
			Name:        ToolStoreTrace,
			Description: "Store an LLM trace in the system.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt":   map[string]any{"type": "string"},
					"response": map[string]any{"type": "string"},
					"meta":     map[string]any{"type": "object", "additionalProperties": true},
				},
				"required": []string{"prompt", "response"},
			},
		},
		{
			Name:        ToolSearch,
			Description: "Search through stored LLM traces.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
					"limit": map[string]any{"type": "integer", "minimum": 0, "default": defaultLimit},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolGetTrace,
			Description: "Retrieve a specific LLM trace by ID.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"trace_id": map[string]any{"type": "string"},
				},
				"required": []string{"trace_id"},
			},
		},
		{
			Name:        ToolExportCSV,
			Description: "Export all traces to a CSV file.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// callTool dispatches to handler functions.
func (srv *Server) callTool(ctx context.Context, name string, args json.RawMessage) (map[string]any, error) {
	switch name {
	case ToolStoreTrace:
		return srv.tStoreTrace(ctx, args)
	case ToolSearch:
		return srv.tSearchTraces(ctx, args)
	case ToolGetTrace:
		return srv.tGetTrace(ctx, args)
	case ToolExportCSV:
		return srv.tExportCSV(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

// ---------- Tool handlers ----------

type storeTraceArgs struct {
	Prompt   *string    `json:"prompt"`
	Response *string    `json:"response"`
	Meta     types.Meta `json:"meta"`
}

// tStoreTrace stores one trace. Input: prompt, response (strings, required;
// empty allowed), meta (object, optional).
func (srv *Server) tStoreTrace(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args storeTraceArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Prompt == nil {
		return nil, errors.New("prompt is required")
	}
	if args.Response == nil {
		return nil, errors.New("response is required")
	}

	st, err := srv.store.Store(ctx, *args.Prompt, *args.Response, args.Meta)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"trace_id":  st.TraceID,
		"prompt":    st.Prompt,
		"response":  st.Response,
		"metadata":  st.Metadata,
		"timestamp": st.Timestamp,
	}, nil
}

type searchArgs struct {
	Query *string `json:"query"`
	Limit *int    `json:"limit"`
}

// tSearchTraces runs a substring search. Input: query (string, required),
// limit (integer, default 10).
func (srv *Server) tSearchTraces(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args searchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Query == nil {
		return nil, errors.New("query is required")
	}
	limit := defaultLimit
	if args.Limit != nil {
		limit = *args.Limit
	}

	traces, err := srv.store.Search(ctx, *args.Query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(traces))
	for _, tr := range traces {
		out = append(out, traceMap(tr))
	}
	return map[string]any{"results": out}, nil
}

type getTraceArgs struct {
	TraceID *string `json:"trace_id"`
}

// tGetTrace looks up one trace. An unknown ID is a normal result carrying an
// error message, not a tool failure.
func (srv *Server) tGetTrace(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args getTraceArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.TraceID == nil {
		return nil, errors.New("trace_id is required")
	}

	tr, err := srv.store.Get(ctx, *args.TraceID)
	if errors.Is(err, types.ErrNotFound) {
		return map[string]any{"error": notFoundMessage}, nil
	}
	if err != nil {
		return nil, err
	}
	return traceMap(*tr), nil
}

// tExportCSV writes the CSV export and reports its location.
func (srv *Server) tExportCSV(ctx context.Context) (map[string]any, error) {
	path, count, err := srv.store.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"exported_file": path, "count": count}, nil
}

// ---------- helpers ----------

// decodeArgs unmarshals tool arguments; absent or null arguments decode to
// the zero value.
func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func traceMap(tr types.Trace) map[string]any {
	return map[string]any{
		"trace_id":  tr.TraceID,
		"prompt":    tr.Prompt,
		"response":  tr.Response,
		"metadata":  tr.Metadata,
		"timestamp": tr.Timestamp,
	}
}
