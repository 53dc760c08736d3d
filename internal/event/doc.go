/*
Package event provides the process-local pub/sub bus used inside the
orchestrator and agent processes to decouple the action ledger's
change-feed monitor, the broker's presence protocol, and the merge
engine from their consumers (operator tooling, tests, future UI).

It is built on watermill's gochannel for infrastructure while keeping
direct-call semantics so subscribers receive typed event data instead
of re-parsing JSON.

# Event types

  - session.created / session.updated / session.deleted: supervisor
    state-machine transitions.
  - agent.joined / agent.left: broker presence protocol broadcasts.
  - tool_call: one row observed by the ledger's change-feed poll.
  - merge.started / merge.completed: merge engine progress.
  - credential.stale: an account's expiry fell inside the refresh margin.

# Usage

	unsubscribe := event.Subscribe(event.ToolCall, func(e event.Event) {
		data := e.Data.(event.ToolCallData)
		logging.Debug().Int64("id", data.Row.ID).Msg("tool call observed")
	})
	defer unsubscribe()

	event.Publish(event.Event{Type: event.ToolCall, Data: event.ToolCallData{Row: row}})

PublishSync blocks until every subscriber returns; subscribers on that
path must not re-enter Publish/PublishSync and must not block.
*/
package event
