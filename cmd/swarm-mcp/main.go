// Command swarm-mcp is the root MCP server: it exposes the
// start_analysis_session/send_message/close_session tool surface over
// JSON-RPC on stdio and owns the supervisor that spawns one
// orchestrator process per binary under analysis.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shells-above/ida-swarm-sub005/internal/config"
	"github.com/shells-above/ida-swarm-sub005/internal/logging"
	"github.com/shells-above/ida-swarm-sub005/internal/rpcserver"
	"github.com/shells-above/ida-swarm-sub005/internal/session"
)

var (
	rootDir          string
	orchestratorPath string
	maxSessions      int
	logLevel         string
	logFile          bool
)

var rootCmd = &cobra.Command{
	Use:   "swarm-mcp",
	Short: "JSON-RPC stdio server coordinating binary analysis swarms",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Stdout is reserved for the JSON-RPC stream; all logging goes
		// to stderr (or a file) regardless of flags.
		logging.Init(logging.Config{
			Level:     logging.ParseLevel(logLevel),
			Output:    os.Stderr,
			LogToFile: logFile,
		})
	},
	RunE: run,
}

func init() {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		cfg = config.Default()
	}

	rootCmd.Flags().StringVar(&rootDir, "sessions-dir", cfg.SessionsDir, "directory holding per-session state")
	rootCmd.Flags().StringVar(&orchestratorPath, "orchestrator-path", cfg.OrchestratorPath, "path to the orchestrator executable")
	rootCmd.Flags().IntVar(&maxSessions, "max-sessions", cfg.MaxSessions, "maximum concurrent analysis sessions")
	rootCmd.Flags().StringVar(&logLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&logFile, "log-file", false, "also log to a timestamped file in the log directory")
}

func run(cmd *cobra.Command, args []string) error {
	spawner := session.ProcessSpawner{OrchestratorPath: orchestratorPath}

	sup, err := session.NewSupervisor(rootDir, maxSessions, spawner, logging.Logger)
	if err != nil {
		return fmt.Errorf("swarm-mcp: create supervisor: %w", err)
	}
	defer sup.CloseAllSessions()

	srv := rpcserver.New(sup, os.Stdin, os.Stdout, logging.Logger)
	return srv.Run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
