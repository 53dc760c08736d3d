package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordClassifiesWriteTools(t *testing.T) {
	l := newTestLedger(t)

	read, err := l.Record("agent-a", "get_function_info", 0x1000, `{}`)
	require.NoError(t, err)
	assert.False(t, read.IsWrite)

	write, err := l.Record("agent-a", "set_comment", 0x1000, `{"comment":"hi"}`)
	require.NoError(t, err)
	assert.True(t, write.IsWrite)
}

func TestCheckForConflictsAcrossAgents(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Record("agent-a", "set_name", 0x2000, `{"name":"foo"}`)
	require.NoError(t, err)
	_, err = l.Record("agent-b", "set_name", 0x2000, `{"name":"bar"}`)
	require.NoError(t, err)
	_, err = l.Record("agent-a", "set_comment", 0x3000, `{}`)
	require.NoError(t, err)

	conflicts, err := l.CheckForConflicts()
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, uint64(0x2000), conflicts[0].FirstCall.Address)
	assert.NotEqual(t, conflicts[0].FirstCall.AgentID, conflicts[0].SecondCall.AgentID)
}

func TestCheckForConflictsIgnoresSameAgent(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Record("agent-a", "set_name", 0x4000, `{"name":"foo"}`)
	require.NoError(t, err)
	_, err = l.Record("agent-a", "set_comment", 0x4000, `{}`)
	require.NoError(t, err)

	conflicts, err := l.CheckForConflicts()
	require.NoError(t, err)
	assert.Empty(t, conflicts, "writes from the same agent at the same address are not a conflict")
}

func TestGetAgentStats(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Record("agent-a", "get_function_info", 0x1000, `{}`)
	require.NoError(t, err)
	_, err = l.Record("agent-a", "set_comment", 0x2000, `{}`)
	require.NoError(t, err)
	_, err = l.Record("agent-b", "set_comment", 0x2000, `{}`)
	require.NoError(t, err)

	stats, err := l.GetAgentStats("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Reads)
	assert.Equal(t, 1, stats.Writes)
	assert.Equal(t, 1, stats.Conflicts)
}

func TestClearAgentData(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Record("agent-a", "set_comment", 0x1000, `{}`)
	require.NoError(t, err)
	require.NoError(t, l.ClearAgentData("agent-a"))

	stats, err := l.GetAgentStats("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}
