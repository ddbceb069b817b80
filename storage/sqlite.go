package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Options configures the SQLite recorder.
type Options struct {
	// Logger receives write failures. Recording is best effort, so errors
	// are logged rather than returned to the dispatch path.
	Logger logging.Logger
}

// SQLiteRecorder persists task lifecycle facts, dead letter entries and
// accepted results to a local SQLite database. It implements core.Recorder.
type SQLiteRecorder struct {
	db     *sql.DB
	logger logging.Logger
}

// DefaultDBPath returns the default database location under the user's home.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".taskmesh", "taskmesh.db")
}

// Open opens (creating if necessary) the recorder database at path.
func Open(path string, optFns ...func(o *Options)) (*SQLiteRecorder, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &SQLiteRecorder{db: db, logger: opts.Logger}
	if err := r.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return r, nil
}

// DB exposes the underlying handle for ad hoc queries in tooling and tests.
func (r *SQLiteRecorder) DB() *sql.DB {
	return r.db
}

// Close closes the underlying database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func (r *SQLiteRecorder) initSchema(ctx context.Context) error {
	pragma := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, q := range pragma {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			recorded_at DATETIME NOT NULL,
			PRIMARY KEY (task_id)
		);`,
		`CREATE TABLE IF NOT EXISTS task_events (
			event_id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS dlq_entries (
			entry_id INTEGER PRIMARY KEY AUTOINCREMENT,
			destination TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			task_id TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			result_id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			category TEXT NOT NULL,
			payload JSON NOT NULL,
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id, event_id);`,
		`CREATE INDEX IF NOT EXISTS idx_task_events_session ON task_events(session_id, event_id);`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_destination ON dlq_entries(destination, entry_id);`,
		`CREATE INDEX IF NOT EXISTS idx_results_session ON results(session_id, result_id);`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	return nil
}

// RecordTask implements core.Recorder. The tasks table holds the latest
// status per task and task_events keeps the append-only history.
func (r *SQLiteRecorder) RecordTask(fact core.TaskFact) {
	at := fact.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO tasks (task_id, session_id, category, status, agent_id, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			agent_id = excluded.agent_id,
			detail = excluded.detail,
			recorded_at = excluded.recorded_at;
	`, fact.TaskID, fact.SessionID, fact.Category, string(fact.Status), fact.AgentID, fact.Detail, at)
	if err != nil {
		r.logger.Error("record task fact", "task_id", fact.TaskID, "error", err)
		return
	}

	_, err = r.db.Exec(`
		INSERT INTO task_events (task_id, session_id, category, status, agent_id, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, fact.TaskID, fact.SessionID, fact.Category, string(fact.Status), fact.AgentID, fact.Detail, at)
	if err != nil {
		r.logger.Error("record task event", "task_id", fact.TaskID, "error", err)
	}
}

// RecordDLQ implements core.Recorder.
func (r *SQLiteRecorder) RecordDLQ(fact core.DLQFact) {
	at := fact.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO dlq_entries (destination, message_id, task_id, reason, retry_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?);
	`, fact.Destination, fact.MessageID, fact.TaskID, fact.Reason, fact.RetryCount, at)
	if err != nil {
		r.logger.Error("record dlq fact", "destination", fact.Destination, "error", err)
	}
}

// RecordResult implements core.Recorder.
func (r *SQLiteRecorder) RecordResult(fact core.ResultFact) {
	at := fact.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	payload, err := json.Marshal(fact.Payload)
	if err != nil {
		r.logger.Error("marshal result payload", "task_id", fact.TaskID, "error", err)
		return
	}

	_, err = r.db.Exec(`
		INSERT INTO results (session_id, task_id, category, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?);
	`, fact.SessionID, fact.TaskID, fact.Category, string(payload), at)
	if err != nil {
		r.logger.Error("record result fact", "task_id", fact.TaskID, "error", err)
	}
}

// TaskStatus returns the latest recorded status for a task, or "" if the
// task was never recorded.
func (r *SQLiteRecorder) TaskStatus(ctx context.Context, taskID string) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM tasks WHERE task_id = ?;`, taskID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query task status: %w", err)
	}
	return status, nil
}

// DLQCount returns the number of dead letter entries recorded for a
// destination.
func (r *SQLiteRecorder) DLQCount(ctx context.Context, destination string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM dlq_entries WHERE destination = ?;`, destination).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query dlq count: %w", err)
	}
	return count, nil
}

// SessionResults returns all recorded result payloads for a session keyed
// by task id.
func (r *SQLiteRecorder) SessionResults(ctx context.Context, sessionID string) (map[string]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_id, payload
		FROM results
		WHERE session_id = ?
		ORDER BY result_id ASC;
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]any)
	for rows.Next() {
		var taskID, raw string
		if err := rows.Scan(&taskID, &raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal result payload: %w", err)
		}
		out[taskID] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result rows: %w", err)
	}
	return out, nil
}
