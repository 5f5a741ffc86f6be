package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/warden/pkg/models"
)

// SaveTask upserts a task state snapshot. The terminal result, when
// present, is stored as JSON.
func (db *DB) SaveTask(task *models.TaskState) error {
	var result sql.NullString
	if task.Result != nil {
		data, err := json.Marshal(task.Result)
		if err != nil {
			return fmt.Errorf("marshal task result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	_, err := db.Exec(`
		INSERT INTO tasks (id, status, input, current_step, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_step = excluded.current_step,
			result = excluded.result,
			updated_at = excluded.updated_at
	`, task.ID, string(task.Status), task.Input, task.CurrentStep, result,
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task state by ID. Returns nil if not found.
func (db *DB) GetTask(id string) (*models.TaskState, error) {
	row := db.QueryRow(`
		SELECT id, status, input, COALESCE(current_step, ''), result, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks lists task states, newest first, optionally filtered by status.
func (db *DB) ListTasks(status *models.TaskStatus) ([]models.TaskState, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, status, input, COALESCE(current_step, ''), result, created_at, updated_at
			FROM tasks WHERE status = ? ORDER BY created_at DESC
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, status, input, COALESCE(current_step, ''), result, created_at, updated_at
			FROM tasks ORDER BY created_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.TaskState
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// scanTask scans one task row using the given Scan function.
func scanTask(scan func(dest ...any) error) (*models.TaskState, error) {
	var t models.TaskState
	var result sql.NullString
	var createdAt, updatedAt string
	if err := scan(&t.ID, &t.Status, &t.Input, &t.CurrentStep, &result, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if result.Valid {
		var r models.OrchestrationResult
		if err := json.Unmarshal([]byte(result.String), &r); err == nil {
			t.Result = &r
		}
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return &t, nil
}
