// Package merge implements the merge engine: once every agent working
// a binary has finished, the orchestrator replays each agent's
// recorded write calls, in ledger order, against the canonical
// database, through the same tool registry agents used live but bound
// to the canonical DBContext instead of an agent's private workspace
// copy.
package merge

import (
	"context"
	"fmt"

	"github.com/shells-above/ida-swarm-sub005/internal/event"
	"github.com/shells-above/ida-swarm-sub005/internal/ledger"
	"github.com/shells-above/ida-swarm-sub005/internal/registry"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// ToolResult is the per-call outcome recorded in a Report. Message and
// Error keep at most the first maxResultText characters.
type ToolResult struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	AgentID  string `json:"agent_id"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Report summarizes one merge run. A per-tool failure never aborts the
// merge: it is captured here and replay continues with the next call.
type Report struct {
	Applied int          `json:"applied"`
	Failed  int          `json:"failed"`
	Results []ToolResult `json:"results"`
}

// Engine replays write calls from the ledger against the canonical
// database through reg. It is deterministic given a ledger snapshot
// and a fixed registry: the same inputs always produce the same
// Report.
type Engine struct {
	reg            *registry.Registry
	led            *ledger.Ledger
	canonicalDBCtx registry.DBContext
	bus            *event.Bus
}

// New builds a merge Engine. canonicalPath is the database path the
// canonical DBContext carries; bus may be nil.
func New(reg *registry.Registry, led *ledger.Ledger, canonicalPath string, bus *event.Bus) *Engine {
	return &Engine{
		reg:            reg,
		led:            led,
		canonicalDBCtx: registry.DBContext{DatabasePath: canonicalPath, Canonical: true},
		bus:            bus,
	}
}

// MergeAgent replays every write call recorded for agentID, in id
// order; read calls are skipped.
func (e *Engine) MergeAgent(ctx context.Context, agentID string) (Report, error) {
	calls, err := e.led.GetCallsForAgent(agentID)
	if err != nil {
		return Report{}, fmt.Errorf("merge: load calls for %s: %w", agentID, err)
	}

	if e.bus != nil {
		e.bus.Publish(event.Event{Type: event.MergeStarted, Data: event.MergeStartedData{AgentID: agentID}})
	}

	report := e.replay(ctx, filterWrites(calls))

	if e.bus != nil {
		e.bus.Publish(event.Event{Type: event.MergeCompleted, Data: event.MergeCompletedData{
			AgentID: agentID, Applied: report.Applied, Failed: report.Failed,
		}})
	}
	return report, nil
}

// MergeAll replays every write call across every agent, in strict
// ledger (id) order, so calls from different agents interleave exactly
// as they were originally issued.
func (e *Engine) MergeAll(ctx context.Context) (Report, error) {
	calls, err := e.led.GetAllWriteCalls()
	if err != nil {
		return Report{}, fmt.Errorf("merge: load all write calls: %w", err)
	}
	return e.replay(ctx, calls), nil
}

func (e *Engine) replay(ctx context.Context, calls []types.ToolCallRecord) Report {
	var report Report
	for _, call := range calls {
		callID := fmt.Sprintf("merge_%d", call.ID)
		res := e.reg.Dispatch(ctx, e.canonicalDBCtx, call.ToolName, []byte(call.Parameters))

		tr := ToolResult{
			CallID:   callID,
			ToolName: call.ToolName,
			AgentID:  call.AgentID,
			Success:  res.Success,
			Message:  truncateText(res.Message),
			Error:    truncateText(res.Error),
		}
		report.Results = append(report.Results, tr)
		if res.Success {
			report.Applied++
		} else {
			report.Failed++
		}
	}
	return report
}

// maxResultText is how many characters of a tool's message or error a
// ToolResult keeps.
const maxResultText = 100

func truncateText(s string) string {
	r := []rune(s)
	if len(r) <= maxResultText {
		return s
	}
	return string(r[:maxResultText])
}

func filterWrites(calls []types.ToolCallRecord) []types.ToolCallRecord {
	out := make([]types.ToolCallRecord, 0, len(calls))
	for _, c := range calls {
		if c.IsWrite {
			out = append(out, c)
		}
	}
	return out
}
