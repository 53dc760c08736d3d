package toolset

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shells-above/ida-swarm-sub005/internal/registry"
)

type recordingBackend struct {
	calls []string
	fail  map[string]error
}

func (b *recordingBackend) Apply(ctx context.Context, dbCtx registry.DBContext, toolName string, params json.RawMessage) (string, error) {
	b.calls = append(b.calls, toolName)
	if err, ok := b.fail[toolName]; ok {
		return "", err
	}
	return "applied " + toolName, nil
}

func TestRegisterAndDispatch(t *testing.T) {
	backend := &recordingBackend{}
	r := registry.New()
	Register(r, backend)

	res := r.Dispatch(context.Background(), registry.DBContext{DatabasePath: "workspace.i64"}, "set_comment", json.RawMessage(`{"address":4096}`))
	require.True(t, res.Success)
	assert.Equal(t, "applied set_comment", res.Message)
	assert.Equal(t, []string{"set_comment"}, backend.calls)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := registry.New()
	Register(r, &recordingBackend{})

	res := r.Dispatch(context.Background(), registry.DBContext{}, "nonexistent_tool", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestDispatchSurfacesBackendError(t *testing.T) {
	backend := &recordingBackend{fail: map[string]error{"patch_bytes": errors.New("address out of range")}}
	r := registry.New()
	Register(r, backend)

	res := r.Dispatch(context.Background(), registry.DBContext{}, "patch_bytes", json.RawMessage(`{"address":1}`))
	assert.False(t, res.Success)
	assert.Equal(t, "address out of range", res.Error)
}

func TestNamesSplitsByWriteClassification(t *testing.T) {
	writes, reads := Names()
	assert.Contains(t, writes, "set_name")
	assert.Contains(t, writes, "patch_assembly")
	assert.Contains(t, reads, "get_function_info")
	assert.NotContains(t, reads, "set_name")
}
