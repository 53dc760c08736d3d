package types

// ToolCallRecord is one append-only row of the action ledger.
type ToolCallRecord struct {
	ID         int64  `json:"id"`
	AgentID    string `json:"agent_id"`
	ToolName   string `json:"tool_name"`
	Address    uint64 `json:"address"`
	Parameters string `json:"parameters"` // JSON text
	Timestamp  int64  `json:"timestamp"`
	IsWrite    bool   `json:"is_write"`
}

// WriteTools is the closed enumeration of tool names that mutate the
// canonical database and are therefore subject to conflict detection
// and merge replay. Every other tool name is a read.
var WriteTools = map[string]bool{
	"set_name":                true,
	"set_comment":             true,
	"set_function_prototype":  true,
	"set_variable":            true,
	"set_local_type":          true,
	"patch_bytes":             true,
	"patch_assembly":          true,
}

// IsWriteTool reports whether name is in the closed write-tool set.
func IsWriteTool(name string) bool {
	return WriteTools[name]
}

// ConflictPair is one row returned by a conflict query: the earlier
// call at the address and the call being checked against it.
type ConflictPair struct {
	FirstCall  ToolCallRecord `json:"first_call"`
	SecondCall ToolCallRecord `json:"second_call"`
}

// AgentStats is the result of get_agent_stats.
type AgentStats struct {
	Total     int `json:"total"`
	Reads     int `json:"reads"`
	Writes    int `json:"writes"`
	Conflicts int `json:"conflicts"`
}

// ToolCallEvent is the JSON shape of one change-feed entry, one per
// new ledger row. The ledger itself publishes event.ToolCallData on
// the event bus, not this type.
type ToolCallEvent struct {
	Row ToolCallRecord `json:"row"`
}
