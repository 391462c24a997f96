package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Task trigger types and statuses.
const (
	TriggerOnce     = "once"
	TriggerInterval = "interval"

	TaskActive    = "active"
	TaskPaused    = "paused"
	TaskCompleted = "completed"
)

// TriggerConfig is the trigger payload: a timestamp for once tasks, an
// interval in seconds for interval tasks.
type TriggerConfig struct {
	Timestamp int64 `json:"timestamp,omitempty"`
	Interval  int64 `json:"interval,omitempty"`
}

// Task is a persistent scheduled task. Its message is handed to the LLM
// when the trigger fires.
type Task struct {
	ID            string
	Name          string
	TriggerType   string
	TriggerConfig TriggerConfig
	Message       string
	CreatedAt     int64
	NextRunAt     int64
	LastRunAt     int64 // zero until first firing
	Status        string
}

// InsertTask persists a new task.
func (s *Store) InsertTask(t *Task) error {
	cfg, err := json.Marshal(t.TriggerConfig)
	if err != nil {
		return fmt.Errorf("%w: marshal trigger config: %v", ErrStoreUnavailable, err)
	}
	if t.Status == "" {
		t.Status = TaskActive
	}

	_, err = s.db.Exec(`
		INSERT INTO scheduled_tasks
		(task_id, name, trigger_type, trigger_config, message, created_at, next_run_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.TriggerType, string(cfg), t.Message, t.CreatedAt, t.NextRunAt, t.Status)
	if err != nil {
		return fmt.Errorf("%w: insert task: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// TaskByID fetches a task, or ErrNotFound.
func (s *Store) TaskByID(id string) (*Task, error) {
	row := s.db.QueryRow(`
		SELECT task_id, name, trigger_type, trigger_config, message,
		       created_at, next_run_at, last_run_at, status
		FROM scheduled_tasks WHERE task_id = ?`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read task: %v", ErrStoreUnavailable, err)
	}
	return t, nil
}

// Tasks returns tasks ordered by next_run_at, optionally filtered by
// status (empty means all).
func (s *Store) Tasks(status string) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = s.db.Query(`
			SELECT task_id, name, trigger_type, trigger_config, message,
			       created_at, next_run_at, last_run_at, status
			FROM scheduled_tasks WHERE status = ? ORDER BY next_run_at ASC`, status)
	} else {
		rows, err = s.db.Query(`
			SELECT task_id, name, trigger_type, trigger_config, message,
			       created_at, next_run_at, last_run_at, status
			FROM scheduled_tasks ORDER BY next_run_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: scan task: %v", ErrStoreUnavailable, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DueTasks returns active tasks with next_run_at <= now, ordered by
// next_run_at ascending.
func (s *Store) DueTasks(now int64) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT task_id, name, trigger_type, trigger_config, message,
		       created_at, next_run_at, last_run_at, status
		FROM scheduled_tasks
		WHERE status = 'active' AND next_run_at <= ?
		ORDER BY next_run_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("%w: due tasks: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: scan due task: %v", ErrStoreUnavailable, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SetTaskStatus updates a task's status.
func (s *Store) SetTaskStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE scheduled_tasks SET status = ? WHERE task_id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("%w: set task status: %v", ErrStoreUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	return nil
}

// RecordFiring records a firing attempt atomically with the task's state
// transition: once tasks complete, interval tasks advance next_run_at by
// their interval. This single transaction is what keeps a once task from
// refiring (I6) — completion is a status change, never a sentinel
// next_run_at.
func (s *Store) RecordFiring(t *Task, firedAt int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin firing record: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	switch t.TriggerType {
	case TriggerOnce:
		_, err = tx.Exec(`
			UPDATE scheduled_tasks SET last_run_at = ?, status = 'completed'
			WHERE task_id = ?`, firedAt, t.ID)
	case TriggerInterval:
		next := firedAt + t.TriggerConfig.Interval
		_, err = tx.Exec(`
			UPDATE scheduled_tasks SET last_run_at = ?, next_run_at = ?
			WHERE task_id = ?`, firedAt, next, t.ID)
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrConflict, t.TriggerType)
	}
	if err != nil {
		return fmt.Errorf("%w: record firing for %s: %v", ErrStoreUnavailable, t.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit firing record: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (*Task, error) {
	var (
		t       Task
		cfgJSON string
		lastRun sql.NullInt64
	)
	err := scan(&t.ID, &t.Name, &t.TriggerType, &cfgJSON, &t.Message,
		&t.CreatedAt, &t.NextRunAt, &lastRun, &t.Status)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &t.TriggerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	if lastRun.Valid {
		t.LastRunAt = lastRun.Int64
	}
	return &t, nil
}
