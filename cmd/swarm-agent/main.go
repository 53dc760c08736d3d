// Command swarm-agent is one agent process within a binary's analysis
// swarm: it joins the orchestrator's broker channel, runs the
// tool-calling loop against its own workspace database copy, recording
// every call to the shared ledger, until its Planner reports the task
// done.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shells-above/ida-swarm-sub005/internal/agentproc"
	"github.com/shells-above/ida-swarm-sub005/internal/broker"
	"github.com/shells-above/ida-swarm-sub005/internal/credential"
	"github.com/shells-above/ida-swarm-sub005/internal/httpclient"
	"github.com/shells-above/ida-swarm-sub005/internal/ledger"
	"github.com/shells-above/ida-swarm-sub005/internal/logging"
	"github.com/shells-above/ida-swarm-sub005/internal/orchestrator"
	"github.com/shells-above/ida-swarm-sub005/internal/registry"
	"github.com/shells-above/ida-swarm-sub005/internal/toolset"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "swarm-agent:", err)
		os.Exit(1)
	}
}

func run() error {
	logging.Init(logging.Config{Level: logging.InfoLevel, Output: os.Stderr})

	agentID := os.Getenv(orchestrator.EnvAgentID)
	brokerAddr := os.Getenv(orchestrator.EnvBrokerAddr)
	channel := os.Getenv(orchestrator.EnvChannel)
	task := os.Getenv(orchestrator.EnvTask)
	workspaceDB := os.Getenv(orchestrator.EnvWorkspaceDB)
	ledgerPath := os.Getenv(orchestrator.EnvLedgerPath)
	if agentID == "" || brokerAddr == "" || workspaceDB == "" || ledgerPath == "" {
		return fmt.Errorf("missing required environment (%s/%s/%s/%s)",
			orchestrator.EnvAgentID, orchestrator.EnvBrokerAddr, orchestrator.EnvWorkspaceDB, orchestrator.EnvLedgerPath)
	}
	if channel == "" {
		channel = types.AgentsChannel
	}

	log := logging.Logger.With().Str("agent_id", agentID).Logger()

	led, err := ledger.Open(ledgerPath, nil)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	backend := orchestrator.NewFileBackend()
	reg := registry.New()
	toolset.Register(reg, backend)

	bus, err := broker.Dial(brokerAddr, agentID, channel)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer bus.Close()

	pool, err := credential.Open(os.Getenv(orchestrator.EnvCredPool), []byte(os.Getenv(orchestrator.EnvCredKey)))
	if err != nil {
		return fmt.Errorf("open credential pool: %w", err)
	}

	planner := &agentproc.HTTPPlanner{
		Client:  httpclient.New(nil, log),
		Pool:    pool,
		BaseURL: os.Getenv(orchestrator.EnvProviderBase),
	}

	agent := &agentproc.Agent{
		ID:       agentID,
		Task:     task,
		DBCtx:    registry.DBContext{DatabasePath: workspaceDB, Canonical: false},
		Registry: reg,
		Ledger:   led,
		Channel:  channel,
		Planner:  planner,
		Log:      log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := agent.Run(ctx, bus)
	if err != nil {
		return fmt.Errorf("agent run: %w", err)
	}
	log.Info().Int("steps", summary.Steps).Int("conflicts", summary.Conflicts).Str("result", summary.Result).Msg("agent finished")
	return nil
}
