package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesEveryField(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.SessionsDir)
	assert.Equal(t, "swarm-orchestrator", cfg.OrchestratorPath)
	assert.Equal(t, "swarm-agent", cfg.AgentPath)
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, 3, cfg.AgentCount)
	assert.Equal(t, "127.0.0.1:4400", cfg.BrokerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApplyConfigBytesMergesOverDefault(t *testing.T) {
	cfg := Default()
	err := applyConfigBytes([]byte(`{
		// a JSONC comment
		"max_sessions": 5,
		"broker_addr": "127.0.0.1:5500",
		"provider": {"anthropic": {"model": "claude"}}
	}`), "", cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxSessions)
	assert.Equal(t, "127.0.0.1:5500", cfg.BrokerAddr)
	assert.Equal(t, "swarm-agent", cfg.AgentPath, "fields absent from the layer are untouched")
	assert.Equal(t, "claude", cfg.Provider["anthropic"].Model)
}

func TestApplyConfigBytesRejectsInvalidJSON(t *testing.T) {
	cfg := Default()
	err := applyConfigBytes([]byte(`{not valid`), "", cfg)
	assert.Error(t, err)
}

func TestInterpolateExpandsEnvPlaceholder(t *testing.T) {
	t.Setenv("IDA_SWARM_TEST_KEY", "secret-value")
	out, err := interpolate([]byte(`{"api_key":"{env:IDA_SWARM_TEST_KEY}"}`), "")
	require.NoError(t, err)
	assert.Equal(t, `{"api_key":"secret-value"}`, string(out))
}

func TestInterpolateExpandsFilePlaceholderRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("line one\nline two"), 0644))

	out, err := interpolate([]byte(`{"instructions":["{file:notes.txt}"]}`), dir)
	require.NoError(t, err)
	assert.Contains(t, string(out), `line one\nline two`)
}

func TestInterpolateFailsOnMissingFile(t *testing.T) {
	_, err := interpolate([]byte(`{"x":"{file:does-not-exist.txt}"}`), t.TempDir())
	assert.Error(t, err)
}

func TestApplyEnvOverridesWinsOverFileLayer(t *testing.T) {
	cfg := Default()
	require.NoError(t, applyConfigBytes([]byte(`{"max_sessions": 5}`), "", cfg))

	t.Setenv("IDA_SWARM_MAX_SESSIONS", "9")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	applyEnvOverrides(cfg)

	assert.Equal(t, 9, cfg.MaxSessions)
	assert.Equal(t, "env-key", cfg.Provider["anthropic"].APIKey)
}

func TestLoadReadsProjectConfigOverGlobalDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".ida-swarm"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".ida-swarm", "ida-swarm.json"),
		[]byte(`{"agent_count": 7}`),
		0644,
	))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir()) // no global config present
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.AgentCount)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ida-swarm.json")

	cfg := Default()
	cfg.BrokerAddr = "127.0.0.1:9999"
	require.NoError(t, Save(cfg, path))

	reloaded := Default()
	require.NoError(t, loadConfigFile(path, reloaded))
	assert.Equal(t, "127.0.0.1:9999", reloaded.BrokerAddr)
}
