package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRecord is the audit row written for every session attempt.
// It carries the details the ledger leaves out (sizes, tokens, timing).
type SessionRecord struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	SessionIndex int           `json:"session_index"`
	WorkItemID   int           `json:"work_item_id"`
	Attempt      int           `json:"attempt"`
	Outcome      string        `json:"outcome"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	PackageSize  int           `json:"package_size"`
	TokensIn     int64         `json:"tokens_in"`
	TokensOut    int64         `json:"tokens_out"`
	Duration     time.Duration `json:"duration"`
	StartedAt    time.Time     `json:"started_at"`
}

// CreateSessionRecord inserts a session audit row, assigning an ID if empty.
func (db *DB) CreateSessionRecord(r *SessionRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	var errorKind sql.NullString
	if r.ErrorKind != "" {
		errorKind = sql.NullString{String: r.ErrorKind, Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO sessions (id, run_id, session_index, work_item_id, attempt, outcome, error_kind,
			package_size, tokens_in, tokens_out, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RunID, r.SessionIndex, r.WorkItemID, r.Attempt, r.Outcome, errorKind,
		r.PackageSize, r.TokensIn, r.TokensOut, r.Duration.Milliseconds(), formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("create session record: %w", err)
	}
	return nil
}

// ListSessionRecords returns the most recent records for a run, newest first.
// A limit <= 0 returns all records.
func (db *DB) ListSessionRecords(runID string, limit int) ([]SessionRecord, error) {
	query := `
		SELECT id, run_id, session_index, work_item_id, attempt, outcome, error_kind,
			package_size, tokens_in, tokens_out, duration_ms, started_at
		FROM sessions WHERE run_id = ? ORDER BY session_index DESC`
	args := []any{runID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var errorKind sql.NullString
		var durationMS int64
		var startedAt string
		if err := rows.Scan(&r.ID, &r.RunID, &r.SessionIndex, &r.WorkItemID, &r.Attempt, &r.Outcome,
			&errorKind, &r.PackageSize, &r.TokensIn, &r.TokensOut, &durationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session record: %w", err)
		}
		if errorKind.Valid {
			r.ErrorKind = errorKind.String
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.StartedAt, _ = parseTime(startedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TokenTotals sums token usage over all sessions of a run.
func (db *DB) TokenTotals(runID string) (in, out int64, err error) {
	row := db.QueryRow(`
		SELECT COALESCE(SUM(tokens_in), 0), COALESCE(SUM(tokens_out), 0)
		FROM sessions WHERE run_id = ?
	`, runID)
	if err := row.Scan(&in, &out); err != nil {
		return 0, 0, fmt.Errorf("sum tokens: %w", err)
	}
	return in, out, nil
}
