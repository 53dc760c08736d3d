// Command swarm-orchestrator is the per-binary orchestrator process:
// the session supervisor spawns one of these per analysis session,
// talking to it over the request.pipe/response.pipe the supervisor
// created and this process opens the mirror-image ends of. It hosts
// the broker, ledger and merge engine for the binary and spawns the
// swarm-agent subprocesses that do the actual tool calling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shells-above/ida-swarm-sub005/internal/logging"
	"github.com/shells-above/ida-swarm-sub005/internal/orchestrator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "swarm-orchestrator:", err)
		os.Exit(1)
	}
}

func run() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return fmt.Errorf("usage: swarm-orchestrator -A [arch-flag] <binary-path>")
	}
	binaryPath := args[len(args)-1]

	logging.Init(logging.Config{
		Level:  logging.InfoLevel,
		Output: os.Stderr,
	})

	cfg, err := orchestrator.LoadConfig(binaryPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Output: os.Stderr})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return orchestrator.Serve(ctx, cfg, logging.Logger)
}
