package broker

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// dialTimeout bounds how long Dial waits to establish the TCP
// connection to the broker before giving up.
const dialTimeout = 5 * time.Second

// Client is the agent-side half of the IRC-lite protocol Server
// speaks: the same NICK/JOIN/PRIVMSG wire shape, used by agent
// processes (and operator tooling) to join a binary's shared channel
// instead of each reimplementing line parsing.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
	nick    string
}

// Dial connects to addr, registers nick and joins each channel in
// order before returning.
func Dial(addr, nick string, channels ...string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("broker: dial %s: %w", addr, err)
	}

	c := &Client{conn: conn, reader: bufio.NewReader(conn), nick: nick}
	if err := c.send(Message{Command: "NICK", Params: []string{nick}}); err != nil {
		conn.Close()
		return nil, err
	}
	for _, ch := range channels {
		if err := c.Join(ch); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write([]byte(msg.Serialize())); err != nil {
		return fmt.Errorf("broker: write to %s: %w", c.conn.RemoteAddr(), err)
	}
	return nil
}

// Join subscribes to channel.
func (c *Client) Join(channel string) error {
	return c.send(Message{Command: "JOIN", Params: []string{channel}})
}

// Part unsubscribes from channel.
func (c *Client) Part(channel string) error {
	return c.send(Message{Command: "PART", Params: []string{channel}})
}

// Privmsg sends text to target (a channel or, once supported, a nick).
func (c *Client) Privmsg(target, text string) error {
	return c.send(Message{Command: "PRIVMSG", Params: []string{target, text}})
}

// AnnounceTask sends the MY_TASK convention message the server turns
// into an AGENT_JOIN presence announcement instead of broadcasting it
// verbatim to the channel.
func (c *Client) AnnounceTask(channel, task string) error {
	return c.Privmsg(channel, types.MyTaskPrefix+task)
}

// Recv blocks for the next line and parses it into a Message. Errors
// (including a clean disconnect, surfaced as io.EOF) are returned
// unchanged so callers can distinguish protocol errors from closure.
func (c *Client) Recv() (Message, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return Message{}, err
	}
	return ParseMessage(strings.TrimRight(line, "\r\n")), nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
