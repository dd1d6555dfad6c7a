package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a requested run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded pipeline run.
type Run struct {
	RunID       string
	SessionID   string
	StartedAt   time.Time
	FinishedAt  *time.Time
	FinalState  string
	Success     bool
	TotalTasks  int
	Completed   int
	Failed      int
	Interrupted bool
	Reason      string
}

// TaskEvent is one recorded task status transition.
type TaskEvent struct {
	RunID     string
	TaskID    string
	Status    string
	Detail    string
	CreatedAt time.Time
}

// StartRun records the beginning of a pipeline run.
func (h *History) StartRun(runID, sessionID string, startedAt time.Time) error {
	_, err := h.db.Exec(`
		INSERT INTO runs (run_id, session_id, started_at)
		VALUES (?, ?, ?)
	`, runID, sessionID, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a pipeline run.
func (h *History) FinishRun(runID, finalState string, success bool, total, completed, failed int, interrupted bool, reason string) error {
	res, err := h.db.Exec(`
		UPDATE runs
		SET finished_at = strftime('%Y-%m-%dT%H:%M:%fZ','now'),
		    final_state = ?, success = ?, total_tasks = ?, completed = ?,
		    failed = ?, interrupted = ?, reason = ?
		WHERE run_id = ?
	`, finalState, boolToInt(success), total, completed, failed, boolToInt(interrupted), reason, runID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordTaskEvent appends one task transition to the audit trail.
func (h *History) RecordTaskEvent(runID, taskID, status, detail string) error {
	_, err := h.db.Exec(`
		INSERT INTO task_events (run_id, task_id, status, detail)
		VALUES (?, ?, ?, ?)
	`, runID, taskID, status, detail)
	if err != nil {
		return fmt.Errorf("failed to record task event: %w", err)
	}
	return nil
}

// GetRun returns one run by ID.
func (h *History) GetRun(runID string) (*Run, error) {
	row := h.db.QueryRow(`
		SELECT run_id, session_id, started_at, finished_at, final_state,
		       success, total_tasks, completed, failed, interrupted, reason
		FROM runs WHERE run_id = ?
	`, runID)
	return scanRun(row)
}

// LastRunForSession returns the most recent run for a session ID, or
// ErrRunNotFound.
func (h *History) LastRunForSession(sessionID string) (*Run, error) {
	row := h.db.QueryRow(`
		SELECT run_id, session_id, started_at, finished_at, final_state,
		       success, total_tasks, completed, failed, interrupted, reason
		FROM runs WHERE session_id = ?
		ORDER BY started_at DESC LIMIT 1
	`, sessionID)
	return scanRun(row)
}

// TaskEvents returns the recorded transitions for a run in insertion order.
func (h *History) TaskEvents(runID string) ([]TaskEvent, error) {
	rows, err := h.db.Query(`
		SELECT run_id, task_id, status, detail, created_at
		FROM task_events WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []TaskEvent
	for rows.Next() {
		var ev TaskEvent
		var createdAt string
		if err := rows.Scan(&ev.RunID, &ev.TaskID, &ev.Status, &ev.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			ev.CreatedAt = t
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task events: %w", err)
	}
	return events, nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt, finalState, reason sql.NullString
	var success, interrupted sql.NullInt64

	err := row.Scan(&r.RunID, &r.SessionID, &startedAt, &finishedAt, &finalState,
		&success, &r.TotalTasks, &r.Completed, &r.Failed, &interrupted, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	if t, perr := time.Parse(time.RFC3339Nano, startedAt); perr == nil {
		r.StartedAt = t
	}
	if finishedAt.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, finishedAt.String); perr == nil {
			r.FinishedAt = &t
		}
	}
	r.FinalState = finalState.String
	r.Success = success.Int64 == 1
	r.Interrupted = interrupted.Int64 == 1
	r.Reason = reason.String
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
