package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/codeframe/conductor/internal/scheduler"
)

const taskColumns = `id, task_number, project_id, title, description, agent_type, depends_on, resources, status, attempts, result, error`

// SaveTask saves or updates a task.
// Uses ON CONFLICT to make saves idempotent, so the orchestrator can
// checkpoint the same task after every status transition.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *scheduler.Task) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dependsOn, err := encodeInt64s(task.DependsOn)
	if err != nil {
		return fmt.Errorf("failed to encode depends_on: %w", err)
	}
	resources, err := encodeStrings(task.Resources)
	if err != nil {
		return fmt.Errorf("failed to encode resources: %w", err)
	}

	// Convert error to string for storage
	errorStr := ""
	if task.Err != nil {
		errorStr = task.Err.Error()
	}

	// Upsert task (insert or update on conflict)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, task_number, project_id, title, description, agent_type, depends_on, resources, status, attempts, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			task_number = excluded.task_number,
			project_id = excluded.project_id,
			title = excluded.title,
			description = excluded.description,
			agent_type = excluded.agent_type,
			depends_on = excluded.depends_on,
			resources = excluded.resources,
			status = excluded.status,
			attempts = excluded.attempts,
			result = excluded.result,
			error = excluded.error,
			updated_at = CURRENT_TIMESTAMP
	`, task.ID, task.TaskNumber, task.ProjectID, task.Title, task.Description, string(task.AgentType),
		dependsOn, resources, task.Status.String(), task.Attempts, task.Result, errorStr)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, taskID int64) (*scheduler.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %d", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	return task, nil
}

// UpdateTaskStatus updates the status, result, and error of a task.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID int64, status scheduler.TaskStatus, result string, taskErr error) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Convert error to string
	errorStr := ""
	if taskErr != nil {
		errorStr = taskErr.Error()
	}

	// Update task status
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, result = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status.String(), result, errorStr, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	// Check if task was found
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %d", taskID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListTasks returns all tasks ordered by task number.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		ORDER BY task_number, id
	`)
}

// ListProjectTasks returns all tasks belonging to a project, ordered by task number.
func (s *SQLiteStore) ListProjectTasks(ctx context.Context, projectID string) ([]*scheduler.Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = ?
		ORDER BY task_number, id
	`, projectID)
}

func (s *SQLiteStore) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*scheduler.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*scheduler.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*scheduler.Task, error) {
	task := &scheduler.Task{}
	var agentType, dependsOn, resources, status, errorStr string

	err := row.Scan(&task.ID, &task.TaskNumber, &task.ProjectID, &task.Title, &task.Description,
		&agentType, &dependsOn, &resources, &status, &task.Attempts, &task.Result, &errorStr)
	if err != nil {
		return nil, err
	}

	task.AgentType = scheduler.AgentType(agentType)

	if err := json.Unmarshal([]byte(dependsOn), &task.DependsOn); err != nil {
		return nil, fmt.Errorf("failed to decode depends_on: %w", err)
	}
	if err := json.Unmarshal([]byte(resources), &task.Resources); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}

	task.Status, err = scheduler.ParseTaskStatus(status)
	if err != nil {
		return nil, err
	}

	// Reconstruct error if present
	if errorStr != "" {
		task.Err = fmt.Errorf("%s", errorStr)
	}

	return task, nil
}

// encodeInt64s serializes an id list as a JSON array, never null.
func encodeInt64s(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodeStrings serializes a string list as a JSON array, never null.
func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
