package broker

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

func startTestServer(t *testing.T) (*Server, string) {
	dbPath := filepath.Join(t.TempDir(), "transcript.db")
	s, err := New(dbPath, nil, zerolog.Nop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn)
		}
	}()

	t.Cleanup(func() { s.Close() })
	return s, ln.Addr().String()
}

func dialAndRegister(t *testing.T, addr, nick string) (net.Conn, *bufio.Reader) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	fmt.Fprintf(conn, "NICK %s\r\n", nick)
	fmt.Fprintf(conn, "JOIN %s\r\n", types.AgentsChannel)
	return conn, bufio.NewReader(conn)
}

func TestPresenceProtocolAnnouncesJoin(t *testing.T) {
	_, addr := startTestServer(t)

	observerConn, observerReader := dialAndRegister(t, addr, "watcher")
	defer observerConn.Close()
	// Drain the JOIN echo for our own registration.
	observerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := observerReader.ReadString('\n')
	require.NoError(t, err)

	agentConn, _ := dialAndRegister(t, addr, "agent_1")
	defer agentConn.Close()
	fmt.Fprintf(agentConn, "PRIVMSG %s :MY_TASK: find the license check\r\n", types.AgentsChannel)

	observerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = observerReader.ReadString('\n') // agent_1's JOIN broadcast
	require.NoError(t, err)
	line, err := observerReader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "AGENT_JOIN: agent_1|find the license check")
}

func TestPrivmsgIsPersistedToTranscript(t *testing.T) {
	s, addr := startTestServer(t)

	conn, reader := dialAndRegister(t, addr, "agent_1")
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := reader.ReadString('\n') // JOIN echo
	require.NoError(t, err)

	fmt.Fprintf(conn, "PRIVMSG %s :hello from agent_1\r\n", types.AgentsChannel)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = reader.ReadString('\n') // echoed PRIVMSG
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rows, err := s.Transcript(types.AgentsChannel)
		return err == nil && len(rows) == 1
	}, 2*time.Second, 20*time.Millisecond)

	rows, err := s.Transcript(types.AgentsChannel)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "agent_1", rows[0].Nick)
	assert.Equal(t, "hello from agent_1", rows[0].Message)
}
