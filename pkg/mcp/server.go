// Package mcp exposes the chain engine over the Model Context Protocol so
// agent callers can execute, validate, and inspect chains as tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/chainrun/chainrun/internal/audit"
	"github.com/chainrun/chainrun/internal/engine"
	"github.com/chainrun/chainrun/internal/ops"
	"github.com/chainrun/chainrun/internal/scheduler"
	"github.com/chainrun/chainrun/internal/validation"
	"github.com/chainrun/chainrun/pkg/schema"
)

// ChainRunner is the execution dependency. Satisfied by the engine executor.
type ChainRunner interface {
	Execute(ctx context.Context, def *schema.ChainDefinition, initial map[string]any, opts engine.Options) (*schema.ChainResult, error)
}

// EventQuerier reads back persisted audit events for a run. Satisfied by the
// libSQL sink.
type EventQuerier interface {
	Events(ctx context.Context, runID string) ([]*audit.Event, error)
}

// ChainScheduler manages recurring chain runs. Satisfied by the scheduler.
type ChainScheduler interface {
	Add(id, cronExpr string, def *schema.ChainDefinition, initial map[string]any, opts engine.Options) error
	Remove(id string)
	Jobs() []scheduler.Job
}

// ServerDeps holds the dependencies for creating a ChainServer.
type ServerDeps struct {
	Runner   ChainRunner
	Registry *ops.Registry
	// Events is optional; when nil the chain.events tool is not registered.
	Events EventQuerier
	// Scheduler is optional; when nil the scheduling tools are not registered.
	Scheduler ChainScheduler
	Logger    *slog.Logger
}

// ChainServer wraps an MCP server with chain tool handlers.
type ChainServer struct {
	runner    ChainRunner
	registry  *ops.Registry
	validator *validation.JSONSchemaValidator
	events    EventQuerier
	scheduler ChainScheduler
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewChainServer creates a ChainServer with its tools registered.
func NewChainServer(deps ServerDeps) (*ChainServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}

	s := &ChainServer{
		runner:    deps.Runner,
		registry:  deps.Registry,
		validator: validator,
		events:    deps.Events,
		scheduler: deps.Scheduler,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"chainrun",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Chainrun executes named operation chains with state threading and per-step failure policies. Use chain.execute to run a chain definition, chain.validate to check a definition without running it, chain.operations to list available operations, and chain.events to read back a run's audit trail."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *ChainServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ChainServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ChainServer) tools() []server.ServerTool {
	tools := []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: operationsTool(), Handler: s.handleOperations},
	}
	if s.events != nil {
		tools = append(tools, server.ServerTool{Tool: eventsTool(), Handler: s.handleEvents})
	}
	if s.scheduler != nil {
		tools = append(tools,
			server.ServerTool{Tool: scheduleTool(), Handler: s.handleSchedule},
			server.ServerTool{Tool: schedulesTool(), Handler: s.handleSchedules},
			server.ServerTool{Tool: unscheduleTool(), Handler: s.handleUnschedule},
		)
	}
	return tools
}

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool("chain.execute",
		mcp.WithDescription("Execute a chain definition and return the complete run result"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Chain definition: a list of steps with operations, inputs, and policies")),
		mcp.WithObject("initial_state", mcp.Description("Initial chain state key/value pairs")),
		mcp.WithString("mode",
			mcp.Enum("sequential", "parallel"),
			mcp.Description("Execution mode (default: sequential)"),
		),
		mcp.WithString("chain", mcp.Description("Chain name override for correlation and audit")),
		mcp.WithObject("context", mcp.Description("Opaque caller context passed unchanged to every operation")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("chain.validate",
		mcp.WithDescription("Validate a chain definition without executing it"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Chain definition to validate")),
		mcp.WithString("mode",
			mcp.Enum("sequential", "parallel"),
			mcp.Description("Execution mode to validate against (default: sequential)"),
		),
	)
}

func operationsTool() mcp.Tool {
	return mcp.NewTool("chain.operations",
		mcp.WithDescription("List the operations available to chain steps"),
	)
}

func eventsTool() mcp.Tool {
	return mcp.NewTool("chain.events",
		mcp.WithDescription("Read back the audit event trail of a completed run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run ID returned by chain.execute")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("chain.schedule",
		mcp.WithDescription("Register a chain to run on a recurring cron schedule"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Unique schedule ID")),
		mcp.WithString("cron", mcp.Required(), mcp.Description("Cron expression (minute hour dom month dow)")),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Chain definition to run on each fire")),
		mcp.WithObject("initial_state", mcp.Description("Initial chain state for each run")),
		mcp.WithString("mode",
			mcp.Enum("sequential", "parallel"),
			mcp.Description("Execution mode (default: sequential)"),
		),
	)
}

func schedulesTool() mcp.Tool {
	return mcp.NewTool("chain.schedules",
		mcp.WithDescription("List registered chain schedules with their last and next run"),
	)
}

func unscheduleTool() mcp.Tool {
	return mcp.NewTool("chain.unschedule",
		mcp.WithDescription("Remove a registered chain schedule"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Schedule ID to remove")),
	)
}
