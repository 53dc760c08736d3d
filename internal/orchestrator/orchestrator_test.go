package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shells-above/ida-swarm-sub005/internal/config"
	"github.com/shells-above/ida-swarm-sub005/internal/registry"
)

func TestFileBackendWriteThenReadRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "workspace.json")
	b := NewFileBackend()
	dbCtx := registry.DBContext{DatabasePath: dbPath}

	_, err := b.Apply(context.Background(), dbCtx, "set_name", json.RawMessage(`{"address":4096,"name":"check_license"}`))
	require.NoError(t, err)

	msg, err := b.Apply(context.Background(), dbCtx, "get_function_info", json.RawMessage(`{"address":4096}`))
	require.NoError(t, err)
	assert.Contains(t, msg, "check_license")
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "workspace.json")
	dbCtx := registry.DBContext{DatabasePath: dbPath}

	first := NewFileBackend()
	_, err := first.Apply(context.Background(), dbCtx, "set_comment", json.RawMessage(`{"address":8192,"comment":"entry point"}`))
	require.NoError(t, err)

	// A fresh backend instance (standing in for a second OS process)
	// reading the same path must observe the first one's write.
	second := NewFileBackend()
	msg, err := second.Apply(context.Background(), dbCtx, "get_disassembly", json.RawMessage(`{"address":8192}`))
	require.NoError(t, err)
	assert.Contains(t, msg, "no disassembly available")
}

func TestFileBackendDatabasesAreIsolatedByPath(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend()

	_, err := b.Apply(context.Background(), registry.DBContext{DatabasePath: filepath.Join(dir, "a.json")}, "set_name", json.RawMessage(`{"address":100,"name":"foo"}`))
	require.NoError(t, err)

	msg, err := b.Apply(context.Background(), registry.DBContext{DatabasePath: filepath.Join(dir, "b.json")}, "get_function_info", json.RawMessage(`{"address":100}`))
	require.NoError(t, err)
	assert.NotContains(t, msg, "foo")
}

func TestFileBackendRejectsUnknownTool(t *testing.T) {
	b := NewFileBackend()
	_, err := b.Apply(context.Background(), registry.DBContext{DatabasePath: filepath.Join(t.TempDir(), "db.json")}, "delete_universe", json.RawMessage(`{"address":1}`))
	assert.Error(t, err)
}

func TestSelectProviderPrefersAnthropic(t *testing.T) {
	o := &Orchestrator{cfg: Config{Provider: map[string]config.ProviderConfig{
		"openai":    {BaseURL: "https://openai.example/v1", Model: "gpt"},
		"anthropic": {BaseURL: "https://anthropic.example/v1", Model: "claude"},
	}}}

	got := o.selectProvider()
	assert.Equal(t, "https://anthropic.example/v1", got.BaseURL)
	assert.Equal(t, "claude", got.Model)
}

func TestSelectProviderFallsBackToAnyConfigured(t *testing.T) {
	o := &Orchestrator{cfg: Config{Provider: map[string]config.ProviderConfig{
		"custom": {BaseURL: "https://custom.example/v1", Model: "m"},
	}}}

	got := o.selectProvider()
	assert.Equal(t, "https://custom.example/v1", got.BaseURL)
}

func TestErrResponseCarriesMessage(t *testing.T) {
	resp := errResponse(assert.AnError)
	assert.True(t, resp.IsError())
	assert.Equal(t, assert.AnError.Error(), resp.Error)
}
