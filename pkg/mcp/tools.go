package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chainrun/chainrun/internal/engine"
	"github.com/chainrun/chainrun/internal/validation"
	"github.com/chainrun/chainrun/pkg/schema"
)

// handleExecute runs a chain definition to completion.
func (s *ChainServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, result := s.parseDefinition(req)
	if result != nil {
		return result, nil
	}

	mode := schema.ExecutionMode(req.GetString("mode", ""))
	initial := mcp.ParseStringMap(req, "initial_state", nil)
	callerCtx := mcp.ParseStringMap(req, "context", nil)
	chainName := req.GetString("chain", "")

	runResult, err := s.runner.Execute(ctx, def, initial, engine.Options{
		Mode:      mode,
		ChainName: chainName,
		Context:   callerCtx,
	})
	if err != nil {
		// Only load-time configuration problems surface here; runtime step
		// failures are folded into the result.
		return mcp.NewToolResultError(fmt.Sprintf("chain rejected: %v", err)), nil
	}

	s.logger.InfoContext(ctx, "chain executed via mcp",
		slog.String("run_id", runResult.RunID),
		slog.String("status", string(runResult.Status)))
	return marshalResult(runResult)
}

// handleValidate checks a definition structurally and semantically without
// running it, returning the full issue list rather than the first failure.
func (s *ChainServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, result := s.parseDefinition(req)
	if result != nil {
		return result, nil
	}

	mode := schema.ExecutionMode(req.GetString("mode", ""))
	if mode == "" {
		mode = schema.ModeSequential
	}

	vr := validation.Validate(def, mode, s.registry)
	return marshalResult(map[string]any{
		"valid":  vr.Valid(),
		"errors": vr.Errors,
	})
}

// handleOperations lists registered operations.
func (s *ChainServer) handleOperations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"operations": s.registry.List(),
		"count":      s.registry.Count(),
	})
}

// handleEvents reads back a run's persisted audit trail.
func (s *ChainServer) handleEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	events, queryErr := s.events.Events(ctx, runID)
	if queryErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("event query failed: %v", queryErr)), nil
	}

	return marshalResult(map[string]any{
		"run_id": runID,
		"events": events,
		"count":  len(events),
	})
}

// handleSchedule registers a recurring run.
func (s *ChainServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	cronExpr, err := req.RequireString("cron")
	if err != nil {
		return mcp.NewToolResultError("cron is required"), nil
	}
	def, result := s.parseDefinition(req)
	if result != nil {
		return result, nil
	}

	opts := engine.Options{
		Mode: schema.ExecutionMode(req.GetString("mode", "")),
	}
	initial := mcp.ParseStringMap(req, "initial_state", nil)

	if addErr := s.scheduler.Add(id, cronExpr, def, initial, opts); addErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule failed: %v", addErr)), nil
	}

	s.logger.InfoContext(ctx, "chain scheduled",
		slog.String("schedule_id", id), slog.String("cron", cronExpr))
	return marshalResult(map[string]any{"ok": true, "id": id, "cron": cronExpr})
}

// handleSchedules lists the schedule table.
func (s *ChainServer) handleSchedules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.scheduler.Jobs()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		entry := map[string]any{
			"id":          j.ID,
			"cron":        j.CronExpression,
			"chain":       j.Definition.Name,
			"next_run_at": j.NextRunAt,
		}
		if !j.LastRunAt.IsZero() {
			entry["last_run_at"] = j.LastRunAt
			entry["last_run_status"] = j.LastRunStatus
		}
		out = append(out, entry)
	}
	return marshalResult(map[string]any{"schedules": out, "count": len(out)})
}

// handleUnschedule removes a schedule.
func (s *ChainServer) handleUnschedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	s.scheduler.Remove(id)
	return marshalResult(map[string]any{"ok": true, "id": id})
}

// parseDefinition extracts and structurally validates the definition
// argument. On failure the second return value is the error tool result.
func (s *ChainServer) parseDefinition(req mcp.CallToolRequest) (*schema.ChainDefinition, *mcp.CallToolResult) {
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, mcp.NewToolResultError("definition is required")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("definition is not serializable: %v", err))
	}

	def, parseErr := s.validator.ParseDefinition(data)
	if parseErr != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", parseErr))
	}
	return def, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
