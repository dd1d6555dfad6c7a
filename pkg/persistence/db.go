// Package persistence provides SQLite-backed run history: pipeline runs,
// task transitions, and failures, recorded across sessions for resume
// diagnostics. The backlog document stays the single source of truth for
// task state; this store is an append-only audit trail.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // database/sql driver

	"foreman/pkg/logx"
)

// History wraps the run-history database.
type History struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (or creates) the history database at dbPath and initializes the
// schema.
func Open(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db, logger: logx.NewLogger("persistence")}
	h.logger.Debug("history database ready at %s", dbPath)
	return h, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

func initializeSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	final_state  TEXT,
	success      INTEGER,
	total_tasks  INTEGER NOT NULL DEFAULT 0,
	completed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	interrupted  INTEGER NOT NULL DEFAULT 0,
	reason       TEXT
);

CREATE TABLE IF NOT EXISTS task_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(run_id),
	task_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	detail     TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_task_events_run ON task_events(run_id);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}
