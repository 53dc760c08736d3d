package rpcserver

import "encoding/json"

var startAnalysisSessionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"binary_path": {"type": "string", "description": "Absolute path to the binary to analyze"},
		"task": {"type": "string", "description": "The analysis task to hand the swarm"}
	},
	"required": ["binary_path", "task"]
}`)

var sendMessageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"session_id": {"type": "string"},
		"message": {"type": "string"}
	},
	"required": ["session_id", "message"]
}`)

var closeSessionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"session_id": {"type": "string"}
	},
	"required": ["session_id"]
}`)

// toolDescriptors is the fixed tools/list payload: three tools, each
// returning a single text content item.
var toolDescriptors = []ToolDescriptor{
	{
		Name:        "start_analysis_session",
		Description: "Spawn (or rejoin) a swarm orchestrator for a binary and run its first task",
		InputSchema: startAnalysisSessionSchema,
	},
	{
		Name:        "send_message",
		Description: "Send a follow-up message to a running analysis session and wait for its response",
		InputSchema: sendMessageSchema,
	},
	{
		Name:        "close_session",
		Description: "Gracefully shut down an analysis session's orchestrator",
		InputSchema: closeSessionSchema,
	},
}

type startAnalysisSessionParams struct {
	BinaryPath string `json:"binary_path"`
	Task       string `json:"task"`
}

type sendMessageParams struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type closeSessionParams struct {
	SessionID string `json:"session_id"`
}
