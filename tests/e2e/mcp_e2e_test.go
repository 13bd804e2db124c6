package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainrun/chainrun/internal/audit"
	"github.com/chainrun/chainrun/internal/engine"
	"github.com/chainrun/chainrun/internal/ops"
	"github.com/chainrun/chainrun/internal/scheduler"
	chainmcp "github.com/chainrun/chainrun/pkg/mcp"
	"github.com/chainrun/chainrun/pkg/schema"
)

// --- Test infrastructure ---

// mcpEnv wires the full server stack behind an in-process MCP round trip.
type mcpEnv struct {
	sink   *audit.LibSQLSink
	server *chainmcp.ChainServer
}

func newMCPEnv(t *testing.T) *mcpEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dbPath := filepath.Join(t.TempDir(), "mcp_e2e.db")
	sink, err := audit.NewLibSQLSink("file:" + dbPath)
	require.NoError(t, err)

	reg := ops.NewRegistry()
	require.NoError(t, ops.RegisterBuiltins(reg, logger))

	exec := engine.New(reg, engine.Config{PoolSize: 4, Sink: sink, Logger: logger})
	sched := scheduler.New(exec, logger, time.Minute)

	srv, err := chainmcp.NewChainServer(chainmcp.ServerDeps{
		Runner:    exec,
		Registry:  reg,
		Events:    sink,
		Scheduler: sched,
		Logger:    logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		exec.Shutdown()
		_ = sink.Close()
	})

	return &mcpEnv{sink: sink, server: srv}
}

// callTool drives a tool through the server's HandleMessage, a full JSON-RPC
// round trip including session initialization.
func (e *mcpEnv) callTool(t *testing.T, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	mcpSrv := e.server.MCPServer()

	initMsg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      0,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo": map[string]any{
				"name":    "e2e-test",
				"version": "1.0.0",
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, mcpSrv.HandleMessage(ctx, initMsg))

	callMsg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	require.NoError(t, err)

	resp := mcpSrv.HandleMessage(ctx, callMsg)
	require.NotNil(t, resp)

	respBytes, err := json.Marshal(resp)
	require.NoError(t, err)

	var rpcResp struct {
		Result *mcp.CallToolResult `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))
	if rpcResp.Error != nil {
		t.Fatalf("JSON-RPC error: code=%d, msg=%s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	require.NotNil(t, rpcResp.Result)
	return rpcResp.Result
}

// extractJSON parses a tool result's text content as JSON.
func extractJSON(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text := mcp.GetTextFromContent(result.Content[0])
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// --- E2E Tests ---

func TestMCP_ExecuteAndReadEvents(t *testing.T) {
	env := newMCPEnv(t)

	definition := map[string]any{
		"name": "greeting",
		"steps": []any{
			map[string]any{
				"name":       "greet",
				"operation":  "echo",
				"inputs":     map[string]any{"message": "hello ${{ state.user }}"},
				"on_success": map[string]any{"output_mappings": map[string]any{"message": "greeting"}},
			},
			map[string]any{
				"name":      "confirm",
				"operation": "echo",
				"inputs":    map[string]any{"text": "state.greeting"},
			},
		},
	}

	result := env.callTool(t, "chain.execute", map[string]any{
		"definition":    definition,
		"initial_state": map[string]any{"user": "ada"},
	})
	require.False(t, result.IsError)

	var run schema.ChainResult
	extractJSON(t, result, &run)
	assert.Equal(t, schema.ChainCompleted, run.Status)
	assert.Equal(t, 2, run.StepsSucceeded)
	assert.Equal(t, "hello ada", run.FinalState["greeting"])
	require.NotEmpty(t, run.RunID)

	eventsResult := env.callTool(t, "chain.events", map[string]any{"run_id": run.RunID})
	require.False(t, eventsResult.IsError)

	var trail struct {
		RunID  string         `json:"run_id"`
		Events []*audit.Event `json:"events"`
		Count  int            `json:"count"`
	}
	extractJSON(t, eventsResult, &trail)
	assert.Equal(t, run.RunID, trail.RunID)
	require.Equal(t, 4, trail.Count)
	assert.Equal(t, schema.EventChainStarted, trail.Events[0].Type)
	assert.Equal(t, schema.EventChainCompleted, trail.Events[3].Type)
}

func TestMCP_ValidateCatchesDanglingNext(t *testing.T) {
	env := newMCPEnv(t)

	definition := map[string]any{
		"steps": []any{
			map[string]any{
				"name":       "first",
				"operation":  "echo",
				"on_success": map[string]any{"next": "nowhere"},
			},
		},
	}

	result := env.callTool(t, "chain.validate", map[string]any{"definition": definition})
	require.False(t, result.IsError)

	var verdict struct {
		Valid  bool             `json:"valid"`
		Errors []map[string]any `json:"errors"`
	}
	extractJSON(t, result, &verdict)
	assert.False(t, verdict.Valid)
	require.NotEmpty(t, verdict.Errors)
}

func TestMCP_OperationsListsBuiltins(t *testing.T) {
	env := newMCPEnv(t)

	result := env.callTool(t, "chain.operations", nil)
	require.False(t, result.IsError)

	var listing struct {
		Operations []ops.OperationInfo `json:"operations"`
		Count      int                 `json:"count"`
	}
	extractJSON(t, result, &listing)
	assert.Equal(t, 4, listing.Count)

	names := make([]string, 0, len(listing.Operations))
	for _, op := range listing.Operations {
		names = append(names, op.Name)
	}
	assert.Contains(t, names, "echo")
	assert.Contains(t, names, "expr.eval")
	assert.Contains(t, names, "jq")
	assert.Contains(t, names, "log")
}

func TestMCP_ScheduleLifecycle(t *testing.T) {
	env := newMCPEnv(t)

	definition := map[string]any{
		"name":  "nightly",
		"steps": []any{map[string]any{"operation": "echo", "inputs": map[string]any{"ping": "pong"}}},
	}

	scheduled := env.callTool(t, "chain.schedule", map[string]any{
		"id":         "nightly-report",
		"cron":       "0 2 * * *",
		"definition": definition,
	})
	require.False(t, scheduled.IsError)

	listResult := env.callTool(t, "chain.schedules", nil)
	var listing struct {
		Schedules []map[string]any `json:"schedules"`
		Count     int              `json:"count"`
	}
	extractJSON(t, listResult, &listing)
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "nightly-report", listing.Schedules[0]["id"])
	assert.Equal(t, "0 2 * * *", listing.Schedules[0]["cron"])
	assert.Equal(t, "nightly", listing.Schedules[0]["chain"])

	removed := env.callTool(t, "chain.unschedule", map[string]any{"id": "nightly-report"})
	require.False(t, removed.IsError)

	listResult = env.callTool(t, "chain.schedules", nil)
	extractJSON(t, listResult, &listing)
	assert.Equal(t, 0, listing.Count)
}
