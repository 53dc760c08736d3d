package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// ProviderConfig holds the upstream LLM endpoint and model an agent
// process's Planner borrows a credential for and calls.
type ProviderConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Config is the layered configuration shared by swarm-mcp,
// swarm-orchestrator, swarm-agent and swarmctl.
type Config struct {
	// SessionsDir is the root directory the session supervisor holds
	// one subdirectory per session under.
	SessionsDir string `json:"sessions_dir,omitempty"`
	// OrchestratorPath is the path to the swarm-orchestrator executable
	// the supervisor spawns per session.
	OrchestratorPath string `json:"orchestrator_path,omitempty"`
	// AgentPath is the path to the swarm-agent executable the
	// orchestrator spawns, one per analysis agent.
	AgentPath string `json:"agent_path,omitempty"`
	// MaxSessions bounds how many concurrent sessions a supervisor
	// will hold; zero means unbounded.
	MaxSessions int `json:"max_sessions,omitempty"`
	// AgentCount is how many agent processes an orchestrator spawns
	// per session.
	AgentCount int `json:"agent_count,omitempty"`
	// CredentialPoolPath is the on-disk encrypted OAuth pool file.
	CredentialPoolPath string `json:"credential_pool_path,omitempty"`
	// BrokerAddr is the host:port the orchestrator's broker listens on
	// and agents dial into.
	BrokerAddr string `json:"broker_addr,omitempty"`
	// LogLevel is the default zerolog level name for every process.
	LogLevel string `json:"log_level,omitempty"`
	// Provider maps a provider name ("anthropic", "openai", ...) to its
	// endpoint configuration.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`
	// Instructions are extra lines appended to every agent's task
	// framing; entries may use {env:VAR} / {file:path} interpolation.
	Instructions []string `json:"instructions,omitempty"`
}

// Default returns the built-in configuration used when no file or
// environment override supplies a value.
func Default() *Config {
	paths := GetPaths()
	return &Config{
		SessionsDir:        paths.SessionsPath(),
		OrchestratorPath:   "swarm-orchestrator",
		AgentPath:          "swarm-agent",
		MaxSessions:        10,
		AgentCount:         3,
		CredentialPoolPath: paths.CredentialPoolPath(),
		BrokerAddr:         "127.0.0.1:4400",
		LogLevel:           "info",
		Provider:           map[string]ProviderConfig{},
	}
}

// Load builds a Config by layering, in increasing precedence: built-in
// defaults, the global config file, a project config file discovered
// under directory, the IDA_SWARM_CONFIG file, IDA_SWARM_CONFIG_CONTENT
// inline JSON(C), and finally direct environment variable overrides.
// A missing file at any layer is not an error; a malformed one is.
func Load(directory string) (*Config, error) {
	cfg := Default()

	if err := loadConfigFile(GlobalConfigPath(), cfg); err != nil {
		return nil, fmt.Errorf("config: load global config: %w", err)
	}

	if directory != "" {
		if err := loadConfigFile(ProjectConfigPath(directory), cfg); err != nil {
			return nil, fmt.Errorf("config: load project config: %w", err)
		}
	}

	if path := os.Getenv("IDA_SWARM_CONFIG"); path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: load IDA_SWARM_CONFIG file: %w", err)
		}
	}

	if content := os.Getenv("IDA_SWARM_CONFIG_CONTENT"); content != "" {
		if err := applyConfigBytes([]byte(content), directory, cfg); err != nil {
			return nil, fmt.Errorf("config: parse IDA_SWARM_CONFIG_CONTENT: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return applyConfigBytes(data, filepath.Dir(path), cfg)
}

// applyConfigBytes strips JSONC comments, expands {env:}/{file:}
// placeholders relative to baseDir, unmarshals the result and merges
// it into cfg.
func applyConfigBytes(data []byte, baseDir string, cfg *Config) error {
	clean := jsonc.ToJSON(data)
	expanded, err := interpolate(clean, baseDir)
	if err != nil {
		return err
	}

	var layer Config
	if err := json.Unmarshal(expanded, &layer); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	mergeConfig(cfg, &layer)
	return nil
}

// mergeConfig overlays non-zero fields of src onto dst: scalars
// overwrite, the provider map merges key by key, and instruction
// slices append rather than replace, matching this package's
// deep-merge-with-last-writer-wins-on-scalars convention.
func mergeConfig(dst, src *Config) {
	if src.SessionsDir != "" {
		dst.SessionsDir = src.SessionsDir
	}
	if src.OrchestratorPath != "" {
		dst.OrchestratorPath = src.OrchestratorPath
	}
	if src.AgentPath != "" {
		dst.AgentPath = src.AgentPath
	}
	if src.MaxSessions != 0 {
		dst.MaxSessions = src.MaxSessions
	}
	if src.AgentCount != 0 {
		dst.AgentCount = src.AgentCount
	}
	if src.CredentialPoolPath != "" {
		dst.CredentialPoolPath = src.CredentialPoolPath
	}
	if src.BrokerAddr != "" {
		dst.BrokerAddr = src.BrokerAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if len(src.Provider) > 0 {
		if dst.Provider == nil {
			dst.Provider = make(map[string]ProviderConfig)
		}
		for name, p := range src.Provider {
			dst.Provider[name] = p
		}
	}
	if len(src.Instructions) > 0 {
		dst.Instructions = append(dst.Instructions, src.Instructions...)
	}
}

// applyEnvOverrides applies the highest-precedence layer: direct
// environment variables, which win over every file-based source.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDA_SWARM_SESSIONS_DIR"); v != "" {
		cfg.SessionsDir = v
	}
	if v := os.Getenv("IDA_SWARM_ORCHESTRATOR_PATH"); v != "" {
		cfg.OrchestratorPath = v
	}
	if v := os.Getenv("IDA_SWARM_AGENT_PATH"); v != "" {
		cfg.AgentPath = v
	}
	if v := os.Getenv("IDA_SWARM_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}
	if v := os.Getenv("IDA_SWARM_AGENT_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AgentCount = n
		}
	}
	if v := os.Getenv("IDA_SWARM_CREDENTIAL_POOL"); v != "" {
		cfg.CredentialPoolPath = v
	}
	if v := os.Getenv("IDA_SWARM_BROKER_ADDR"); v != "" {
		cfg.BrokerAddr = v
	}
	if v := os.Getenv("IDA_SWARM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setProviderKey(cfg, "anthropic", v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProviderKey(cfg, "openai", v)
	}
}

func setProviderKey(cfg *Config, name, key string) {
	if cfg.Provider == nil {
		cfg.Provider = make(map[string]ProviderConfig)
	}
	p := cfg.Provider[name]
	p.APIKey = key
	cfg.Provider[name] = p
}

// interpolatePattern matches {env:VAR_NAME} and {file:path} placeholders.
var interpolatePattern = regexp.MustCompile(`\{(env|file):([^}]+)\}`)

// interpolate expands {env:VAR}/{file:path} placeholders found anywhere
// in raw JSON text before it is unmarshaled. {file:path} resolves
// relative paths against baseDir and supports a leading ~/ for the
// caller's home directory; file contents are JSON-string-escaped so
// multi-line files remain valid inside a quoted value.
func interpolate(raw []byte, baseDir string) ([]byte, error) {
	var outerErr error
	out := interpolatePattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		sub := interpolatePattern.FindSubmatch(match)
		kind, arg := string(sub[1]), string(sub[2])

		switch kind {
		case "env":
			return []byte(os.Getenv(arg))
		case "file":
			path := arg
			if strings.HasPrefix(path, "~/") {
				home, err := os.UserHomeDir()
				if err == nil {
					path = filepath.Join(home, path[2:])
				}
			} else if !filepath.IsAbs(path) && baseDir != "" {
				path = filepath.Join(baseDir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				outerErr = fmt.Errorf("interpolate {file:%s}: %w", arg, err)
				return match
			}
			escaped, err := json.Marshal(string(data))
			if err != nil {
				outerErr = err
				return match
			}
			// Strip the surrounding quotes json.Marshal added: the
			// placeholder sits inside a JSON string literal already.
			return escaped[1 : len(escaped)-1]
		default:
			return match
		}
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return out, nil
}

// Save writes cfg as indented JSON to path, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
