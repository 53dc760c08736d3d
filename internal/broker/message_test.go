package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeSimpleMessage(t *testing.T) {
	msg := Message{Command: "JOIN", Params: []string{"#agents"}}
	assert.Equal(t, "JOIN #agents\r\n", msg.Serialize())
}

func TestSerializeWithPrefixAndTrailing(t *testing.T) {
	msg := Message{Prefix: "agent_1", Command: "PRIVMSG", Params: []string{"#agents", "hello there"}}
	assert.Equal(t, ":agent_1 PRIVMSG #agents :hello there\r\n", msg.Serialize())
}

func TestParseMessageRoundTrip(t *testing.T) {
	line := ":agent_1 PRIVMSG #agents :MY_TASK: find the license check"
	msg := ParseMessage(line)
	assert.Equal(t, "agent_1", msg.Prefix)
	assert.Equal(t, "PRIVMSG", msg.Command)
	assert.Equal(t, []string{"#agents", "MY_TASK: find the license check"}, msg.Params)
}

func TestParseMessageWithoutPrefix(t *testing.T) {
	msg := ParseMessage("NICK agent_2")
	assert.Empty(t, msg.Prefix)
	assert.Equal(t, "NICK", msg.Command)
	assert.Equal(t, []string{"agent_2"}, msg.Params)
}

func TestParseEmptyLine(t *testing.T) {
	msg := ParseMessage("")
	assert.Empty(t, msg.Command)
}
