package orchestrator

import (
	"fmt"
	"os"

	"github.com/shells-above/ida-swarm-sub005/internal/config"
	"github.com/shells-above/ida-swarm-sub005/internal/session"
)

// Config is everything one orchestrator process instance needs to run
// a single binary's analysis swarm, resolved once at startup from the
// environment the supervisor set and the layered config file.
type Config struct {
	SessionID  string
	SessionDir string
	BinaryPath string

	AgentPath          string
	AgentCount         int
	CredentialPoolPath string
	CredentialKey      []byte
	BrokerAddr         string
	Provider           map[string]config.ProviderConfig
	Instructions       []string
	LogLevel           string
}

// credentialKeyEnv names the environment variable holding the key
// material the credential pool's envelope encryption is derived from.
// Its provisioning (secrets manager, keychain, operator-supplied file)
// is a deployment concern outside this project's scope; an empty
// value falls back to storing credentials in the pool file unsealed,
// which Pool.Open already treats as "no encryption configured".
const credentialKeyEnv = "IDA_SWARM_CREDENTIAL_KEY"

// LoadConfig resolves Config from the session environment variables
// the supervisor set (session.EnvSessionID/EnvSessionDir) plus the
// same layered config file swarm-mcp reads, so every process in the
// swarm agrees on agent counts, provider endpoints and the broker
// address without separate configuration.
func LoadConfig(binaryPath string) (Config, error) {
	sessionID := os.Getenv(session.EnvSessionID)
	sessionDir := os.Getenv(session.EnvSessionDir)
	if sessionID == "" || sessionDir == "" {
		return Config{}, fmt.Errorf("orchestrator: missing %s/%s in environment", session.EnvSessionID, session.EnvSessionDir)
	}

	cfg, err := config.Load(sessionDir)
	if err != nil {
		cfg = config.Default()
	}

	return Config{
		SessionID:          sessionID,
		SessionDir:         sessionDir,
		BinaryPath:         binaryPath,
		AgentPath:          cfg.AgentPath,
		AgentCount:         cfg.AgentCount,
		CredentialPoolPath: cfg.CredentialPoolPath,
		CredentialKey:      []byte(os.Getenv(credentialKeyEnv)),
		BrokerAddr:         cfg.BrokerAddr,
		Provider:           cfg.Provider,
		Instructions:       cfg.Instructions,
		LogLevel:           cfg.LogLevel,
	}, nil
}
