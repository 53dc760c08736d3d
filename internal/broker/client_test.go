package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

func TestClientAnnounceTaskTriggersAgentJoin(t *testing.T) {
	_, addr := startTestServer(t)

	observer, err := Dial(addr, "watcher", types.AgentsChannel)
	require.NoError(t, err)
	defer observer.Close()
	_, err = observer.Recv() // own JOIN echo
	require.NoError(t, err)

	agent, err := Dial(addr, "agent_1", types.AgentsChannel)
	require.NoError(t, err)
	defer agent.Close()

	require.NoError(t, agent.AnnounceTask(types.AgentsChannel, "find the license check"))

	observer.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = observer.Recv() // agent_1's JOIN broadcast
	require.NoError(t, err)
	msg, err := observer.Recv()
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.Contains(t, msg.Params[1], "AGENT_JOIN: agent_1|find the license check")
}

func TestClientPrivmsgRoundTrips(t *testing.T) {
	s, addr := startTestServer(t)

	a, err := Dial(addr, "agent_1", types.AgentsChannel)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Recv() // own JOIN echo
	require.NoError(t, err)

	require.NoError(t, a.Privmsg(types.AgentsChannel, "hello"))
	a.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Params[1])

	require.Eventually(t, func() bool {
		rows, err := s.Transcript(types.AgentsChannel)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
