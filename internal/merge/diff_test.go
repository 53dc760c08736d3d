package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

func TestDiffConflictRendersParameterDiff(t *testing.T) {
	pair := types.ConflictPair{
		FirstCall: types.ToolCallRecord{
			ID: 1, AgentID: "agent-a", ToolName: "set_name", Address: 0x1000,
			Parameters: "{\n  \"address\": 4096,\n  \"name\": \"sub_1000\"\n}",
		},
		SecondCall: types.ToolCallRecord{
			ID: 2, AgentID: "agent-b", ToolName: "set_name", Address: 0x1000,
			Parameters: "{\n  \"address\": 4096,\n  \"name\": \"main\"\n}",
		},
	}

	cd := DiffConflict(pair)

	assert.Equal(t, uint64(0x1000), cd.Address)
	assert.Equal(t, "agent-a", cd.FirstAgent)
	assert.Equal(t, "agent-b", cd.SecondAgent)
	assert.NotEmpty(t, cd.DiffText)
	assert.Equal(t, 1, cd.Additions)
	assert.Equal(t, 1, cd.Deletions)
}

func TestDiffConflictIdenticalParametersProducesNoDiff(t *testing.T) {
	params := "{\"address\":4096,\"name\":\"main\"}"
	pair := types.ConflictPair{
		FirstCall:  types.ToolCallRecord{ID: 1, AgentID: "agent-a", ToolName: "set_name", Address: 0x1000, Parameters: params},
		SecondCall: types.ToolCallRecord{ID: 2, AgentID: "agent-b", ToolName: "set_name", Address: 0x1000, Parameters: params},
	}

	cd := DiffConflict(pair)

	assert.Empty(t, cd.DiffText)
	assert.Equal(t, 0, cd.Additions)
	assert.Equal(t, 0, cd.Deletions)
}
