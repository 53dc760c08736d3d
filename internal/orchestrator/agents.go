package orchestrator

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// Environment variables the orchestrator passes a spawned swarm-agent
// process, mirroring session.EnvSessionID/EnvSessionDir's
// environment-only coupling convention rather than command-line flags.
const (
	EnvAgentID      = "IDA_SWARM_AGENT_ID"
	EnvBrokerAddr   = "IDA_SWARM_BROKER_ADDR"
	EnvChannel      = "IDA_SWARM_CHANNEL"
	EnvTask         = "IDA_SWARM_TASK"
	EnvWorkspaceDB  = "IDA_SWARM_WORKSPACE_DB"
	EnvLedgerPath   = "IDA_SWARM_LEDGER_PATH"
	EnvProviderBase = "IDA_SWARM_PROVIDER_BASE_URL"
	EnvProviderKey  = "IDA_SWARM_PROVIDER_API_KEY"
	EnvProviderName = "IDA_SWARM_PROVIDER_MODEL"
	EnvCredPool     = "IDA_SWARM_CREDENTIAL_POOL"
	EnvCredKey      = "IDA_SWARM_CREDENTIAL_KEY"
)

// agentProcess tracks one spawned swarm-agent child.
type agentProcess struct {
	ID  string
	cmd *exec.Cmd
}

// spawnAgent launches one swarm-agent subprocess working the given
// task against its own workspace database copy (a file under
// sessionDir distinct from the canonical database, so concurrent
// agents never race on the same file; the merge engine is what later
// reconciles their recorded writes against the canonical copy).
func spawnAgent(agentPath, agentID, task, sessionDir, brokerAddr, ledgerPath, credPoolPath string, credKey []byte, provider providerEnv) (*agentProcess, error) {
	workspaceDB := filepath.Join(sessionDir, agentID+".workspace.json")

	cmd := exec.Command(agentPath)
	cmd.Env = append(os.Environ(),
		EnvAgentID+"="+agentID,
		EnvBrokerAddr+"="+brokerAddr,
		EnvChannel+"="+types.AgentsChannel,
		EnvTask+"="+task,
		EnvWorkspaceDB+"="+workspaceDB,
		EnvLedgerPath+"="+ledgerPath,
		EnvProviderBase+"="+provider.BaseURL,
		EnvProviderKey+"="+provider.APIKey,
		EnvProviderName+"="+provider.Model,
		EnvCredPool+"="+credPoolPath,
		EnvCredKey+"="+string(credKey),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("orchestrator: spawn agent %s: %w", agentID, err)
	}
	return &agentProcess{ID: agentID, cmd: cmd}, nil
}

// providerEnv is the subset of config.ProviderConfig an agent process
// needs to build its Planner.
type providerEnv struct {
	BaseURL string
	APIKey  string
	Model   string
}

// wait blocks until the agent process exits, returning its error (nil
// on a clean exit).
func (a *agentProcess) wait() error {
	return a.cmd.Wait()
}

// stop sends SIGKILL to the agent process if it is still running.
func (a *agentProcess) stop() {
	if a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
	}
}
