// Package broker implements the in-memory IRC-lite message bus agents
// use to collaborate while analyzing the same binary: NICK/JOIN/PART/
// PRIVMSG over a line-oriented TCP protocol, a conventional presence
// protocol layered on top (a message in #agents from an "agent_" nick,
// prefixed "MY_TASK: ", becomes an AGENT_JOIN announcement instead of
// being broadcast verbatim), and every other PRIVMSG mirrored into a
// SQLite transcript table for later inspection.
package broker

import (
	"bufio"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/shells-above/ida-swarm-sub005/internal/event"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// client is one connected agent (or operator tool).
type client struct {
	conn     net.Conn
	writeMu  sync.Mutex
	nick     string
	channels map[string]bool
}

func (c *client) send(msg Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.Write([]byte(msg.Serialize()))
}

// channel tracks membership of one channel.
type channel struct {
	name    string
	members map[*client]bool
}

// Server is the broker's TCP listener and channel/client registry.
type Server struct {
	log zerolog.Logger
	bus *event.Bus
	db  *sql.DB

	listener net.Listener

	mu       sync.Mutex
	clients  map[*client]bool
	channels map[string]*channel
	agents   map[string]types.AgentRecord // nick -> presence record
}

// New creates a Server. transcriptDBPath holds the mirrored transcript
// table; bus may be nil.
func New(transcriptDBPath string, bus *event.Bus, log zerolog.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(transcriptDBPath), 0755); err != nil {
		return nil, fmt.Errorf("broker: create transcript directory: %w", err)
	}

	dsn := transcriptDBPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("broker: open transcript database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			channel   TEXT NOT NULL,
			nick      TEXT NOT NULL,
			message   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcript_channel ON transcript(channel);
	`); err != nil {
		return nil, fmt.Errorf("broker: init transcript schema: %w", err)
	}

	return &Server{
		log:      log.With().Str("component", "broker").Logger(),
		bus:      bus,
		db:       db,
		clients:  make(map[*client]bool),
		channels: make(map[string]*channel),
		agents:   make(map[string]types.AgentRecord),
	}, nil
}

// ListenAndServe binds addr and accepts connections until Close is
// called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("broker: listen %s: %w", addr, err)
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections and closes the transcript
// database.
func (s *Server) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	return s.db.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	c := &client{conn: conn, channels: make(map[string]bool)}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	defer s.disconnect(c)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		msg := ParseMessage(line)
		if msg.Command == "" {
			continue
		}
		s.dispatch(c, msg)
	}
}

func (s *Server) dispatch(c *client, msg Message) {
	switch msg.Command {
	case "NICK":
		if len(msg.Params) > 0 {
			c.nick = msg.Params[0]
		}
	case "JOIN":
		if len(msg.Params) > 0 {
			s.join(c, msg.Params[0])
		}
	case "PART":
		if len(msg.Params) > 0 {
			s.part(c, msg.Params[0])
		}
	case "PRIVMSG":
		if len(msg.Params) >= 2 {
			s.privmsg(c, msg.Params[0], msg.Params[1])
		}
	}
}

func (s *Server) join(c *client, chanName string) {
	s.mu.Lock()
	ch, ok := s.channels[chanName]
	if !ok {
		ch = &channel{name: chanName, members: make(map[*client]bool)}
		s.channels[chanName] = ch
	}
	ch.members[c] = true
	c.channels[chanName] = true
	members := snapshotMembers(ch)
	s.mu.Unlock()

	joinMsg := Message{Prefix: c.nick, Command: "JOIN", Params: []string{chanName}}
	for _, m := range members {
		m.send(joinMsg)
	}
}

func (s *Server) part(c *client, chanName string) {
	s.mu.Lock()
	ch, ok := s.channels[chanName]
	if ok {
		delete(ch.members, c)
	}
	delete(c.channels, chanName)
	var members []*client
	if ok {
		members = snapshotMembers(ch)
	}
	s.mu.Unlock()

	partMsg := Message{Prefix: c.nick, Command: "PART", Params: []string{chanName}}
	for _, m := range members {
		m.send(partMsg)
	}
}

// privmsg handles one PRIVMSG, applying the presence convention: a
// message to types.AgentsChannel from an "agent_"-prefixed nick whose
// text starts with types.MyTaskPrefix announces AGENT_JOIN instead of
// being broadcast verbatim, and is not itself persisted to the
// transcript.
func (s *Server) privmsg(c *client, target, text string) {
	if target == types.AgentsChannel && strings.HasPrefix(c.nick, "agent_") && strings.HasPrefix(text, types.MyTaskPrefix) {
		task := strings.TrimPrefix(text, types.MyTaskPrefix)
		s.mu.Lock()
		s.agents[c.nick] = types.AgentRecord{AgentID: c.nick, Task: task, LastSeen: time.Now().Unix()}
		s.mu.Unlock()

		s.broadcastToChannel(types.AgentsChannel, Message{
			Command: "PRIVMSG",
			Params:  []string{types.AgentsChannel, fmt.Sprintf("AGENT_JOIN: %s|%s", c.nick, task)},
		})
		if s.bus != nil {
			s.bus.Publish(event.Event{Type: event.AgentJoined, Data: event.AgentPresenceData{AgentID: c.nick, Task: task}})
		}
		return
	}

	s.persist(target, c.nick, text)
	s.broadcastToChannel(target, Message{Prefix: c.nick, Command: "PRIVMSG", Params: []string{target, text}})
}

func (s *Server) broadcastToChannel(chanName string, msg Message) {
	s.mu.Lock()
	ch, ok := s.channels[chanName]
	var members []*client
	if ok {
		members = snapshotMembers(ch)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, m := range members {
		m.send(msg)
	}
}

func (s *Server) persist(chanName, nick, text string) {
	_, err := s.db.Exec(
		`INSERT INTO transcript (timestamp, channel, nick, message) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), chanName, nick, text,
	)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to persist transcript row")
	}
}

func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	for chanName := range c.channels {
		if ch, ok := s.channels[chanName]; ok {
			delete(ch.members, c)
		}
	}
	_, wasAgent := s.agents[c.nick]
	delete(s.agents, c.nick)
	s.mu.Unlock()

	c.conn.Close()

	if wasAgent {
		s.broadcastToChannel(types.AgentsChannel, Message{
			Command: "PRIVMSG",
			Params:  []string{types.AgentsChannel, "AGENT_LEAVE: " + c.nick},
		})
		if s.bus != nil {
			s.bus.Publish(event.Event{Type: event.AgentLeft, Data: event.AgentPresenceData{AgentID: c.nick}})
		}
	}
}

// Transcript returns every persisted row for a channel, oldest first.
func (s *Server) Transcript(chanName string) ([]types.TranscriptRow, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, channel, nick, message FROM transcript WHERE channel = ? ORDER BY id`, chanName,
	)
	if err != nil {
		return nil, fmt.Errorf("broker: query transcript: %w", err)
	}
	defer rows.Close()

	var out []types.TranscriptRow
	for rows.Next() {
		var row types.TranscriptRow
		var ts int64
		if err := rows.Scan(&row.ID, &ts, &row.Channel, &row.Nick, &row.Message); err != nil {
			return nil, fmt.Errorf("broker: scan transcript row: %w", err)
		}
		row.Timestamp = ts
		out = append(out, row)
	}
	return out, rows.Err()
}

// ActiveAgents returns a snapshot of every agent currently known
// present in the #agents channel.
func (s *Server) ActiveAgents() []types.AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AgentRecord, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out
}

func snapshotMembers(ch *channel) []*client {
	out := make([]*client, 0, len(ch.members))
	for m := range ch.members {
		out = append(out, m)
	}
	return out
}
