// Command mcphost runs the interactive MCP chat host: it connects to the
// servers described in a YAML config, aggregates their tools, and answers
// queries through an Anthropic-backed pipeline with persistent context
// memory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/halcyonlab/mcphost/pkg/mcphost"
	"github.com/halcyonlab/mcphost/pkg/memctx"
	"github.com/halcyonlab/mcphost/pkg/pipeline"
	"github.com/halcyonlab/mcphost/pkg/shell"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mcphost: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "servers.yaml", "server descriptor file")
		historyPath = flag.String("history", "context_history.json", "context history file")
		maxHistory  = flag.Int("max-history", 50, "conversation turns to retain")
		model       = flag.String("model", "", "completion model (defaults to the provider default)")
		maxRounds   = flag.Int("max-rounds", 5, "tool call rounds per query")
		debug       = flag.Bool("debug", false, "enable debug logging")
		logRPC      = flag.Bool("log-rpc", false, "log JSON-RPC traffic for all servers")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configs, err := mcphost.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	host, err := mcphost.New(configs, &mcphost.Options{Logger: logger, LogRPC: *logRPC})
	if err != nil {
		return err
	}
	if err := host.Initialize(ctx); err != nil {
		// Partial connectivity is fine; the host serves whatever came up.
		logger.Warn("some servers unavailable", "error", err)
	}
	defer func() {
		if err := host.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()
	if len(host.ToolNames()) == 0 {
		logger.Warn("no tools available, continuing without tool support")
	}

	store, err := memctx.Open(memctx.Options{
		Path:       *historyPath,
		MaxHistory: *maxHistory,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Persist(); err != nil {
			logger.Warn("persist history", "error", err)
		}
	}()

	completer := pipeline.NewAnthropic(pipeline.AnthropicOptions{Model: *model})
	pipe := pipeline.New(completer, host, store, &pipeline.Options{
		MaxRounds: *maxRounds,
		Logger:    logger,
	})

	sh := shell.New(pipe, store, host, shell.Options{
		Input:  os.Stdin,
		Output: os.Stdout,
		Logger: logger,
	})
	return sh.Run(ctx)
}
