// Package memory persists tasks and their outputs in SQLite so runs
// survive restarts and recurring tasks can be woken up later.
package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/graniet/kheish/internal/config"
	"github.com/graniet/kheish/internal/task"
)

// TaskStore is a SQLite-backed repository of tasks and task outputs.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore opens (or creates) the database at path. ":memory:"
// gives an ephemeral store.
func NewTaskStore(path string) (*TaskStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	store := &TaskStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *TaskStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL UNIQUE,
		name TEXT,
		description TEXT,
		state TEXT NOT NULL,
		context TEXT,
		proposal_history TEXT,
		current_proposal TEXT,
		feedback_history TEXT,
		module_execution_history TEXT,
		conversation TEXT,
		config TEXT,
		interval TEXT,
		last_run_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_outputs (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		output TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(task_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
	CREATE INDEX IF NOT EXISTS idx_task_outputs_task ON task_outputs(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *TaskStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func nullTimeString(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

// InsertTask persists a task together with its config. Inserting an
// already known task_id is a no-op returning the existing row id.
func (s *TaskStore) InsertTask(t *task.Task, cfg *config.TaskConfig) (string, error) {
	var existing string
	err := s.db.QueryRow(`SELECT id FROM tasks WHERE task_id = ?`, t.ID).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup task %s: %w", t.ID, err)
	}

	rowID := uuid.New().String()
	now := time.Now().Format(time.RFC3339)

	var cfgJSON any
	if cfg != nil {
		cfgJSON = marshalJSON(cfg)
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (
			id, task_id, name, description, state,
			context, proposal_history, current_proposal,
			feedback_history, module_execution_history, conversation,
			config, interval, last_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rowID, t.ID, t.Name, t.Description, t.State.String(),
		marshalJSON(t.Context), marshalJSON(t.ProposalHistory), t.CurrentProposal,
		marshalJSON(t.FeedbackHistory), marshalJSON(t.ModuleExecutionHistory), marshalJSON(t.Conversation),
		cfgJSON, t.Interval, nullTimeString(t.LastRunAt), now, now)
	if err != nil {
		return "", fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return rowID, nil
}

// TasksByStates returns every task whose state matches one of the
// given kinds.
func (s *TaskStore) TasksByStates(states ...task.StateKind) ([]task.Task, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(states))
	for i, st := range states {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, string(st))
	}

	rows, err := s.db.Query(`
		SELECT task_id, name, description, state,
		       context, proposal_history, current_proposal,
		       feedback_history, module_execution_history, conversation,
		       interval, last_run_at
		FROM tasks WHERE state IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(rows *sql.Rows) (task.Task, error) {
	var t task.Task
	var state string
	var ctxJSON, proposals, current, feedback, executions, conversation sql.NullString
	var interval, lastRun sql.NullString

	if err := rows.Scan(&t.ID, &t.Name, &t.Description, &state,
		&ctxJSON, &proposals, &current, &feedback, &executions, &conversation,
		&interval, &lastRun); err != nil {
		return t, fmt.Errorf("scan task: %w", err)
	}

	t.State = task.ParseState(state)
	t.CurrentProposal = current.String
	t.Interval = interval.String

	if ctxJSON.Valid && ctxJSON.String != "" {
		_ = json.Unmarshal([]byte(ctxJSON.String), &t.Context)
	}
	if proposals.Valid && proposals.String != "" {
		_ = json.Unmarshal([]byte(proposals.String), &t.ProposalHistory)
	}
	if feedback.Valid && feedback.String != "" {
		_ = json.Unmarshal([]byte(feedback.String), &t.FeedbackHistory)
	}
	if executions.Valid && executions.String != "" {
		_ = json.Unmarshal([]byte(executions.String), &t.ModuleExecutionHistory)
	}
	if conversation.Valid && conversation.String != "" {
		_ = json.Unmarshal([]byte(conversation.String), &t.Conversation)
	}
	if lastRun.Valid && lastRun.String != "" {
		if ts, err := time.Parse(time.RFC3339, lastRun.String); err == nil {
			t.LastRunAt = &ts
		}
	}
	return t, nil
}

// UpdateState sets the state of a task by its logical id.
func (s *TaskStore) UpdateState(taskID string, st task.State) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE tasks SET state = ?, updated_at = ? WHERE task_id = ?`,
		st.String(), now, taskID)
	if err != nil {
		return fmt.Errorf("update state of %s: %w", taskID, err)
	}
	return nil
}

// UpdateLastRun stamps the task's last run time with now.
func (s *TaskStore) UpdateLastRun(taskID string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE tasks SET last_run_at = ?, updated_at = ? WHERE task_id = ?`,
		now, now, taskID)
	if err != nil {
		return fmt.Errorf("update last run of %s: %w", taskID, err)
	}
	return nil
}

// UpdateSnapshot persists the mutable task body after a run so a
// resumed task keeps its conversation and proposals.
func (s *TaskStore) UpdateSnapshot(t *task.Task) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE tasks SET
			state = ?, context = ?, proposal_history = ?, current_proposal = ?,
			feedback_history = ?, module_execution_history = ?, conversation = ?,
			last_run_at = ?, updated_at = ?
		WHERE task_id = ?`,
		t.State.String(), marshalJSON(t.Context), marshalJSON(t.ProposalHistory), t.CurrentProposal,
		marshalJSON(t.FeedbackHistory), marshalJSON(t.ModuleExecutionHistory), marshalJSON(t.Conversation),
		nullTimeString(t.LastRunAt), now, t.ID)
	if err != nil {
		return fmt.Errorf("update snapshot of %s: %w", t.ID, err)
	}
	return nil
}

// UpdateConfig replaces the stored config of a task.
func (s *TaskStore) UpdateConfig(taskID string, cfg *config.TaskConfig) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE tasks SET config = ?, updated_at = ? WHERE task_id = ?`,
		marshalJSON(cfg), now, taskID)
	if err != nil {
		return fmt.Errorf("update config of %s: %w", taskID, err)
	}
	return nil
}

// TaskConfig loads the stored config of a task.
func (s *TaskStore) TaskConfig(taskID string) (*config.TaskConfig, error) {
	var raw sql.NullString
	err := s.db.QueryRow(`SELECT config FROM tasks WHERE task_id = ?`, taskID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load config of %s: %w", taskID, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, fmt.Errorf("task %s has no stored config", taskID)
	}
	var cfg config.TaskConfig
	if err := json.Unmarshal([]byte(raw.String), &cfg); err != nil {
		return nil, fmt.Errorf("parse config of %s: %w", taskID, err)
	}
	return &cfg, nil
}

// AddOutput appends a produced output for the task.
func (s *TaskStore) AddOutput(taskID, output string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO task_outputs (id, task_id, output, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), taskID, output, now, now)
	if err != nil {
		return fmt.Errorf("add output of %s: %w", taskID, err)
	}
	return nil
}

// LatestOutput returns the most recent output of a task, if any.
func (s *TaskStore) LatestOutput(taskID string) (string, bool, error) {
	var output string
	err := s.db.QueryRow(`
		SELECT output FROM task_outputs WHERE task_id = ?
		ORDER BY created_at DESC LIMIT 1`, taskID).Scan(&output)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load output of %s: %w", taskID, err)
	}
	return output, true, nil
}
