package agentproc

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shells-above/ida-swarm-sub005/internal/ledger"
	"github.com/shells-above/ida-swarm-sub005/internal/registry"
)

type fakeTool struct {
	name string
}

func (t *fakeTool) Name() string               { return t.name }
func (t *fakeTool) Description() string        { return "" }
func (t *fakeTool) Parameters() json.RawMessage { return nil }
func (t *fakeTool) Execute(ctx context.Context, dbCtx registry.DBContext, params json.RawMessage) registry.Result {
	return registry.Result{Success: true, Message: "applied " + t.name}
}

// scriptedPlanner replays a fixed sequence of actions, one per call to
// NextAction, regardless of the task or history passed in.
type scriptedPlanner struct {
	actions []Action
	calls   int
}

func (p *scriptedPlanner) NextAction(ctx context.Context, task string, history []Turn) (Action, error) {
	if p.calls >= len(p.actions) {
		return Action{Done: true, Result: "exhausted"}, nil
	}
	a := p.actions[p.calls]
	p.calls++
	return a, nil
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAgentRunRecordsEveryCallAndStopsOnDone(t *testing.T) {
	led := newTestLedger(t)
	reg := registry.New()
	reg.Register(&fakeTool{name: "set_name"})

	planner := &scriptedPlanner{actions: []Action{
		{Tool: "set_name", Params: json.RawMessage(`{"address":4096,"name":"main"}`), Address: 4096},
		{Done: true, Result: "renamed entrypoint"},
	}}

	agent := &Agent{
		ID:       "agent_1",
		Task:     "find and rename main",
		DBCtx:    registry.DBContext{DatabasePath: "workspace.json"},
		Registry: reg,
		Ledger:   led,
		Channel:  "#agents",
		Planner:  planner,
		Log:      zerolog.Nop(),
	}

	summary, err := agent.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "renamed entrypoint", summary.Result)
	assert.Equal(t, 1, summary.Steps)

	calls, err := led.GetCallsForAgent("agent_1")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "set_name", calls[0].ToolName)
	assert.Equal(t, uint64(4096), calls[0].Address)
}

func TestAgentRunStopsAfterMaxStepsWithoutDone(t *testing.T) {
	led := newTestLedger(t)
	reg := registry.New()
	reg.Register(&fakeTool{name: "get_function_info"})

	actions := make([]Action, 0, MaxSteps)
	for i := 0; i < MaxSteps; i++ {
		actions = append(actions, Action{Tool: "get_function_info", Params: json.RawMessage(`{"address":1}`)})
	}
	planner := &scriptedPlanner{actions: actions}

	agent := &Agent{
		ID:       "agent_2",
		Task:     "loop forever",
		DBCtx:    registry.DBContext{DatabasePath: "workspace.json"},
		Registry: reg,
		Ledger:   led,
		Channel:  "#agents",
		Planner:  planner,
		Log:      zerolog.Nop(),
	}

	_, err := agent.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestAgentRunPropagatesPlannerError(t *testing.T) {
	led := newTestLedger(t)
	reg := registry.New()

	agent := &Agent{
		ID:       "agent_3",
		Task:     "anything",
		DBCtx:    registry.DBContext{DatabasePath: "workspace.json"},
		Registry: reg,
		Ledger:   led,
		Channel:  "#agents",
		Planner:  &erroringPlanner{},
		Log:      zerolog.Nop(),
	}

	_, err := agent.Run(context.Background(), nil)
	assert.Error(t, err)
}

type erroringPlanner struct{}

func (erroringPlanner) NextAction(ctx context.Context, task string, history []Turn) (Action, error) {
	return Action{}, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "planner exploded" }

func TestAgentRunRespectsContextCancellation(t *testing.T) {
	led := newTestLedger(t)
	reg := registry.New()
	reg.Register(&fakeTool{name: "get_function_info"})

	planner := &scriptedPlanner{actions: []Action{
		{Tool: "get_function_info", Params: json.RawMessage(`{"address":1}`)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agent := &Agent{
		ID:       "agent_4",
		Task:     "anything",
		DBCtx:    registry.DBContext{DatabasePath: "workspace.json"},
		Registry: reg,
		Ledger:   led,
		Channel:  "#agents",
		Planner:  planner,
		Log:      zerolog.Nop(),
	}

	_, err := agent.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
