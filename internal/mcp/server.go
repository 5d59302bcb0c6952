// Package mcp serves the trace store as Model Context Protocol tools over a
// newline-delimited JSON-RPC 2.0 stdio stream.
//
// The server is a thin boundary: it decodes tool arguments, calls the store,
// and shapes results. All persistence lives in the store.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/tracestore/internal/logging"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// ServerName is advertised to clients during initialize.
const ServerName = "LLM Trace Server"

// Store is the subset of types.TraceStore the server dispatches to.
type Store interface {
	Store(ctx context.Context, prompt, response string, meta types.Meta) (*types.StoredTrace, error)
	Search(ctx context.Context, query string, limit int) ([]types.Trace, error)
	Get(ctx context.Context, traceID string) (*types.Trace, error)
	ExportAll(ctx context.Context) (string, int, error)
}

// Server holds the store and the advertised tool list.
type Server struct {
	store   Store
	logger  *zap.Logger
	version string
	tools   []ToolDesc
}

// NewServer wires a server around store. A nil logger discards output.
func NewServer(store Store, logger *zap.Logger, version string) *Server {
	srv := &Server{
		store:   store,
		logger:  logging.OrNop(logger),
		version: version,
	}
	srv.initTools()
	return srv
}

// Tools returns the advertised tool descriptors.
func (srv *Server) Tools() []ToolDesc {
	return srv.tools
}

// Serve reads requests from in, one JSON object per line, and writes
// responses to out until in reaches EOF or ctx is cancelled. Requests are
// handled in order.
func (srv *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	rd := bufio.NewReader(in)
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	srv.logger.Info("mcp server started", zap.String("protocol", ProtocolVersion))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := rd.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if resp := srv.handleLine(ctx, line); resp != nil {
				if err := enc.Encode(resp); err != nil {
					return fmt.Errorf("write response: %w", err)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				srv.logger.Info("mcp server stopped: input closed")
				return nil
			}
			return fmt.Errorf("read request: %w", readErr)
		}
	}
}

// handleLine decodes one message and dispatches it. Returns nil for
// notifications.
func (srv *Server) handleLine(ctx context.Context, line []byte) *rpcResponse {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		srv.logger.Warn("malformed request", zap.Error(err))
		return errorResponse(nullID, codeParseError, "parse error: "+err.Error())
	}
	return srv.handle(ctx, &req)
}

// handle dispatches a single decoded request.
func (srv *Server) handle(ctx context.Context, req *rpcRequest) *rpcResponse {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, codeInvalidRequest, "invalid request")
	}

	var (
		result any
		rerr   *rpcError
	)
	switch req.Method {
	case "initialize":
		result, rerr = srv.initialize(req.Params)
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = map[string]any{"tools": srv.tools}
	case "tools/call":
		result, rerr = srv.toolsCall(ctx, req.Params)
	default:
		if req.isNotification() {
			// notifications/initialized, notifications/cancelled, ...
			srv.logger.Debug("notification", zap.String("method", req.Method))
			return nil
		}
		rerr = &rpcError{Code: codeMethodNotFound, Message: "unknown method: " + req.Method}
	}

	if req.isNotification() {
		return nil
	}
	if rerr != nil {
		return errorResponse(req.ID, rerr.Code, rerr.Message)
	}
	return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (srv *Server) initialize(params json.RawMessage) (any, *rpcError) {
	var p initializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}
	srv.logger.Info("client initialized", zap.String("client_protocol", p.ProtocolVersion))
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo: serverInfo{Name: ServerName, Version: srv.version},
	}, nil
}

func (srv *Server) toolsCall(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p toolCallParams
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "tools/call requires a tool name"}
	}

	start := time.Now()
	payload, err := srv.callTool(ctx, p.Name, p.Arguments)
	fields := []zap.Field{zap.String("tool", p.Name), zap.Duration("duration", time.Since(start))}

	if errors.Is(err, errUnknownTool) {
		srv.logger.Warn("unknown tool", fields...)
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err != nil {
		srv.logger.Error("tool call failed", append(fields, zap.Error(err))...)
		return ToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	srv.logger.Info("tool call", fields...)
	return textResult(payload), nil
}

// textResult renders payload as both text and structured content.
func textResult(payload map[string]any) ToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return ToolResult{Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true}
	}
	return ToolResult{
		Content:           []Content{{Type: "text", Text: string(data)}},
		StructuredContent: payload,
	}
}

func errorResponse(id json.RawMessage, code int, msg string) *rpcResponse {
	if len(id) == 0 {
		id = nullID
	}
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}
