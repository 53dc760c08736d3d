package event

import "github.com/shells-above/ida-swarm-sub005/pkg/types"

// SessionCreatedData is the data for session.created events, published
// by the supervisor once a session directory and pipes exist.
type SessionCreatedData struct {
	Info types.SessionInfo `json:"info"`
}

// SessionUpdatedData is the data for session.updated events (state
// machine transitions).
type SessionUpdatedData struct {
	Info types.SessionInfo `json:"info"`
}

// SessionDeletedData is the data for session.deleted events, published
// once a session directory has been fully reaped.
type SessionDeletedData struct {
	SessionID string `json:"session_id"`
}

// AgentPresenceData is the data for agent.joined / agent.left events,
// mirroring the broker's presence protocol broadcasts.
type AgentPresenceData struct {
	AgentID string `json:"agent_id"`
	Task    string `json:"task,omitempty"`
}

// ToolCallData is the data for tool_call events published by the
// ledger's change-feed monitor loop.
type ToolCallData struct {
	Row types.ToolCallRecord `json:"row"`
}

// MergeStartedData is the data for merge.started events.
type MergeStartedData struct {
	AgentID string `json:"agent_id"`
}

// MergeCompletedData is the data for merge.completed events.
type MergeCompletedData struct {
	AgentID string `json:"agent_id"`
	Applied int    `json:"applied"`
	Failed  int    `json:"failed"`
}

// CredentialStaleData is the data for credential.stale events,
// published when an account's expiry falls inside the refresh margin.
type CredentialStaleData struct {
	AccountUUID string `json:"account_uuid"`
}
