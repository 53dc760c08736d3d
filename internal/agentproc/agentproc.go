package agentproc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shells-above/ida-swarm-sub005/internal/broker"
	"github.com/shells-above/ida-swarm-sub005/internal/ledger"
	"github.com/shells-above/ida-swarm-sub005/internal/registry"
)

// MaxSteps bounds how many tool calls a single agent run may make
// before it is stopped regardless of the Planner's own judgment.
const MaxSteps = 200

// Action is one decision returned by a Planner: either a tool call to
// dispatch against the workspace database, or a final result ending
// the run.
type Action struct {
	Tool    string
	Params  json.RawMessage
	Address uint64
	// Note, when non-empty, is relayed to the broker channel as
	// progress chatter other agents can see.
	Note string
	Done bool
	// Result is the agent's final summary, populated only when Done.
	Result string
}

// Turn records one completed tool call, fed back to the Planner as
// history for its next decision.
type Turn struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
	Result registry.Result `json:"result"`
}

// Planner decides the next Action given the task and the calls made
// so far. Implementations talk to the upstream LLM; agentproc only
// owns the surrounding loop, ledger recording and broker chatter.
type Planner interface {
	NextAction(ctx context.Context, task string, history []Turn) (Action, error)
}

// Agent runs one agent process's tool-calling loop bound to a single
// workspace database.
type Agent struct {
	ID       string
	Task     string
	DBCtx    registry.DBContext
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Channel  string
	Planner  Planner
	Log      zerolog.Logger
}

// Summary is the outcome of one agent Run.
type Summary struct {
	Result    string
	Steps     int
	Conflicts int
}

// Run announces the agent's task over bus (if non-nil), then loops
// asking Planner for the next action until it reports Done, the step
// budget is exhausted, or ctx is canceled. Every tool call is recorded
// to the ledger before dispatch, so a crash mid-call still leaves a
// durable record for merge and conflict detection.
func (a *Agent) Run(ctx context.Context, bus *broker.Client) (Summary, error) {
	if bus != nil {
		if err := bus.AnnounceTask(a.Channel, a.Task); err != nil {
			a.Log.Warn().Err(err).Msg("failed to announce task on broker")
		}
	}

	var history []Turn
	for step := 0; step < MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		default:
		}

		action, err := a.Planner.NextAction(ctx, a.Task, history)
		if err != nil {
			return Summary{}, fmt.Errorf("agentproc: planner: %w", err)
		}

		if action.Done {
			conflicts := 0
			if stats, statsErr := a.Ledger.GetAgentStats(a.ID); statsErr != nil {
				a.Log.Warn().Err(statsErr).Msg("failed to read final agent stats")
			} else {
				conflicts = stats.Conflicts
			}
			return Summary{Result: action.Result, Steps: step, Conflicts: conflicts}, nil
		}

		if _, err := a.Ledger.Record(a.ID, action.Tool, action.Address, string(action.Params)); err != nil {
			a.Log.Error().Err(err).Str("tool", action.Tool).Msg("failed to record tool call")
		}

		res := a.Registry.Dispatch(ctx, a.DBCtx, action.Tool, action.Params)
		history = append(history, Turn{Tool: action.Tool, Params: action.Params, Result: res})

		if bus != nil && action.Note != "" {
			if err := bus.Privmsg(a.Channel, fmt.Sprintf("%s: %s", a.ID, action.Note)); err != nil {
				a.Log.Warn().Err(err).Msg("failed to publish progress note")
			}
		}
	}
	return Summary{}, fmt.Errorf("agentproc: %s exceeded %d steps without completion", a.ID, MaxSteps)
}
