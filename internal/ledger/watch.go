package ledger

import (
	"context"
	"time"
)

// pollInterval is how often Watch checks for rows inserted by other
// processes sharing this ledger's database file. Record already
// publishes synchronously for calls made through this *Ledger handle;
// Watch exists so a process that only reads the ledger (the broker, an
// operator dashboard) still observes activity from writers in other
// processes.
const pollInterval = 500 * time.Millisecond

// Watch polls for rows with id greater than the highest id seen so
// far and publishes one event per row, until ctx is cancelled. The
// starting point is the ledger's current max id, so a fresh watcher
// never replays history.
func (l *Ledger) Watch(ctx context.Context) error {
	lastID, err := l.maxID()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rows, err := l.db.Query(
				`SELECT id, agent_id, tool_name, address, parameters, timestamp, is_write
				 FROM tool_calls WHERE id > ? ORDER BY id`, lastID,
			)
			if err != nil {
				return err
			}

			for rows.Next() {
				rec, err := scanToolCall(rows)
				if err != nil {
					rows.Close()
					return err
				}
				lastID = rec.ID
				if l.bus != nil {
					l.publishRecord(rec)
				}
			}
			rows.Close()
		}
	}
}

func (l *Ledger) maxID() (int64, error) {
	var id int64
	err := l.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM tool_calls`).Scan(&id)
	return id, err
}
