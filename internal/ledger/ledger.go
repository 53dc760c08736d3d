// Package ledger implements the append-only action ledger: every
// write-capable tool call an agent makes against the shared binary
// database is recorded here, so the merge engine can replay them in
// order and so conflicting edits between agents can be surfaced before
// they cause damage. Modeled closely on a classic audit log: rows are
// never updated or deleted, only inserted and queried.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shells-above/ida-swarm-sub005/internal/event"
	"github.com/shells-above/ida-swarm-sub005/pkg/types"
)

// Ledger is a single SQLite-backed tool_calls table shared by every
// agent working on one binary.
type Ledger struct {
	db  *sql.DB
	bus *event.Bus
}

// Open creates (or reuses) the ledger database at dbPath. bus may be
// nil, in which case Record publishes nothing.
func Open(dbPath string, bus *event.Bus) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("ledger: create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer WAL file shared across agent goroutines

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ledger: ping database: %w", err)
	}

	l := &Ledger{db: db, bus: bus}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	const schema = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS tool_calls (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id    TEXT NOT NULL,
		tool_name   TEXT NOT NULL,
		address     INTEGER NOT NULL,
		parameters  TEXT NOT NULL,
		timestamp   INTEGER NOT NULL,
		is_write    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_agent ON tool_calls(agent_id);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_address ON tool_calls(address);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_write ON tool_calls(is_write);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_timestamp ON tool_calls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_agent_address ON tool_calls(agent_id, address);
	`
	_, err := l.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("ledger: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one tool call. isWrite comes from types.IsWriteTool
// rather than being trusted from the caller, so a mislabeled call can
// never slip a write past conflict detection.
func (l *Ledger) Record(agentID, toolName string, address uint64, parameters string) (types.ToolCallRecord, error) {
	isWrite := types.IsWriteTool(toolName)
	now := time.Now()

	res, err := l.db.Exec(
		`INSERT INTO tool_calls (agent_id, tool_name, address, parameters, timestamp, is_write)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		agentID, toolName, int64(address), parameters, now.Unix(), boolToInt(isWrite),
	)
	if err != nil {
		return types.ToolCallRecord{}, fmt.Errorf("ledger: insert tool call: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.ToolCallRecord{}, fmt.Errorf("ledger: read inserted id: %w", err)
	}

	row := types.ToolCallRecord{
		ID:         id,
		AgentID:    agentID,
		ToolName:   toolName,
		Address:    address,
		Parameters: parameters,
		Timestamp:  now.Unix(),
		IsWrite:    isWrite,
	}

	if l.bus != nil {
		l.bus.Publish(event.Event{Type: event.ToolCall, Data: event.ToolCallData{Row: row}})
	}
	return row, nil
}

// CheckForConflicts returns every pair of write calls from different
// agents that touch the same address: each write is paired with every
// earlier write at that address by another agent. Pairs are ordered by
// address, then by the later call's id, then by the earlier call's id,
// and each pair is reported once.
func (l *Ledger) CheckForConflicts() ([]types.ConflictPair, error) {
	rows, err := l.db.Query(
		`SELECT id, agent_id, tool_name, address, parameters, timestamp, is_write
		 FROM tool_calls WHERE is_write = 1 ORDER BY address, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query writes: %w", err)
	}
	defer rows.Close()

	byAddress := make(map[uint64][]types.ToolCallRecord)
	var order []uint64
	for rows.Next() {
		rec, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		if _, seen := byAddress[rec.Address]; !seen {
			order = append(order, rec.Address)
		}
		byAddress[rec.Address] = append(byAddress[rec.Address], rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var conflicts []types.ConflictPair
	for _, addr := range order {
		calls := byAddress[addr]
		for i := 1; i < len(calls); i++ {
			for j := 0; j < i; j++ {
				if calls[j].AgentID != calls[i].AgentID {
					conflicts = append(conflicts, types.ConflictPair{
						FirstCall:  calls[j],
						SecondCall: calls[i],
					})
				}
			}
		}
	}
	return conflicts, nil
}

// GetAgentStats summarizes one agent's recorded activity. Conflicts
// is, summed over every address this agent wrote, the number of other
// agents that also wrote that address.
func (l *Ledger) GetAgentStats(agentID string) (types.AgentStats, error) {
	var stats types.AgentStats

	err := l.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(is_write), 0) FROM tool_calls WHERE agent_id = ?`, agentID,
	).Scan(&stats.Total, &stats.Writes)
	if err != nil {
		return types.AgentStats{}, fmt.Errorf("ledger: query agent totals: %w", err)
	}
	stats.Reads = stats.Total - stats.Writes

	err = l.db.QueryRow(
		`SELECT COUNT(*) FROM (
			SELECT DISTINCT mine.address, other.agent_id
			FROM tool_calls mine
			JOIN tool_calls other
			  ON other.address = mine.address AND other.is_write = 1 AND other.agent_id != mine.agent_id
			WHERE mine.agent_id = ? AND mine.is_write = 1
		)`, agentID,
	).Scan(&stats.Conflicts)
	if err != nil {
		return types.AgentStats{}, fmt.Errorf("ledger: query agent conflicts: %w", err)
	}
	return stats, nil
}

// GetCallsForAgent returns every call recorded for agentID in
// insertion order, for merge replay and transcript display.
func (l *Ledger) GetCallsForAgent(agentID string) ([]types.ToolCallRecord, error) {
	rows, err := l.db.Query(
		`SELECT id, agent_id, tool_name, address, parameters, timestamp, is_write
		 FROM tool_calls WHERE agent_id = ? ORDER BY id`, agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query agent calls: %w", err)
	}
	defer rows.Close()

	var out []types.ToolCallRecord
	for rows.Next() {
		rec, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetAllWriteCalls returns every recorded write call across all
// agents, in insertion (id) order, which is the replay order the
// merge engine applies them in.
func (l *Ledger) GetAllWriteCalls() ([]types.ToolCallRecord, error) {
	rows, err := l.db.Query(
		`SELECT id, agent_id, tool_name, address, parameters, timestamp, is_write
		 FROM tool_calls WHERE is_write = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query write calls: %w", err)
	}
	defer rows.Close()

	var out []types.ToolCallRecord
	for rows.Next() {
		rec, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ClearAgentData deletes every row recorded for agentID. Used when an
// agent's work is discarded rather than merged.
func (l *Ledger) ClearAgentData(agentID string) error {
	_, err := l.db.Exec(`DELETE FROM tool_calls WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("ledger: clear agent data: %w", err)
	}
	return nil
}

func (l *Ledger) publishRecord(rec types.ToolCallRecord) {
	l.bus.Publish(event.Event{Type: event.ToolCall, Data: event.ToolCallData{Row: rec}})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToolCall(rows rowScanner) (types.ToolCallRecord, error) {
	var rec types.ToolCallRecord
	var address int64
	var ts int64
	var isWrite int
	if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.ToolName, &address, &rec.Parameters, &ts, &isWrite); err != nil {
		return types.ToolCallRecord{}, fmt.Errorf("ledger: scan tool call row: %w", err)
	}
	rec.Address = uint64(address)
	rec.Timestamp = ts
	rec.IsWrite = isWrite != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
