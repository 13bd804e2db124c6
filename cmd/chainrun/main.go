// Command chainrun serves the chain execution engine over MCP stdio.
// Operations are invoked by name from the built-in registry; every run
// produces an auditable result and an event trail in the configured sink.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chainrun/chainrun/internal/audit"
	"github.com/chainrun/chainrun/internal/engine"
	"github.com/chainrun/chainrun/internal/logging"
	"github.com/chainrun/chainrun/internal/ops"
	"github.com/chainrun/chainrun/internal/scheduler"
	"github.com/chainrun/chainrun/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chainrun:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := ops.NewRegistry()
	if err := ops.RegisterBuiltins(registry, logger); err != nil {
		return fmt.Errorf("register builtin operations: %w", err)
	}

	sink, querier, closeSink, err := newSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("configure audit sink: %w", err)
	}
	defer closeSink()

	executor := engine.New(registry, engine.Config{
		PoolSize: cfg.PoolSize,
		Sink:     sink,
		Logger:   logger,
	})
	defer executor.Shutdown()

	sched := scheduler.New(executor, logger, tickInterval(cfg))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if stopErr := sched.Stop(); stopErr != nil {
			logger.Warn("stop scheduler", slog.String("error", stopErr.Error()))
		}
	}()

	srv, err := mcp.NewChainServer(mcp.ServerDeps{
		Runner:    executor,
		Registry:  registry,
		Events:    querier,
		Scheduler: sched,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	logger.Info("chainrun serving on stdio",
		slog.Int("operations", registry.Count()),
		slog.String("audit_sink", cfg.AuditSink))

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp serve: %w", err)
	}
	logger.Info("chainrun stopped")
	return nil
}

// newLogger builds the stderr logger with correlation IDs injected from
// context. Stdout is reserved for the MCP transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// newSink builds the configured audit sink. The returned EventQuerier is
// nil for sinks without read-back.
func newSink(cfg Config, logger *slog.Logger) (audit.Sink, mcp.EventQuerier, func(), error) {
	switch cfg.AuditSink {
	case "memory":
		return audit.NewMemorySink(), nil, func() {}, nil
	case "libsql":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, nil, nil, err
		}
		sink, err := audit.NewLibSQLSink("file:" + cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return sink, sink, func() {
			if closeErr := sink.Close(); closeErr != nil {
				logger.Warn("close audit db", slog.String("error", closeErr.Error()))
			}
		}, nil
	case "none":
		return audit.Discard, nil, func() {}, nil
	default: // slog
		return audit.NewSlogSink(logger), nil, func() {}, nil
	}
}

// tickInterval parses the scheduler tick setting, falling back to a minute.
func tickInterval(cfg Config) time.Duration {
	d, err := time.ParseDuration(cfg.TickInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}
