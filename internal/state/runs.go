package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Run is one persisted orchestration run.
type Run struct {
	ID         string            `json:"id"`
	Goal       string            `json:"goal"`
	Kind       models.ResultKind `json:"kind"`
	Output     string            `json:"output"`
	Error      string            `json:"error"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at"`
	Duration   time.Duration     `json:"duration_ms"`
}

// RunEvent is one persisted orchestration event.
type RunEvent struct {
	Seq       int64     `json:"seq"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	StepID    string    `json:"step_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// StartRun records the beginning of an orchestration run.
func (db *DB) StartRun(id, goal string, startedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, goal, started_at)
		VALUES (?, ?, ?)
	`, id, goal, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the terminal result of a run, including every step
// result, in a single transaction.
func (db *DB) FinishRun(result *models.OrchestrationResult) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	now := formatTime(time.Now())
	var runErr sql.NullString
	if result.Error != "" {
		runErr = sql.NullString{String: result.Error, Valid: true}
	}
	_, err = tx.Exec(`
		UPDATE runs SET kind = ?, output = ?, error = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?
	`, string(result.Kind), result.Output, runErr, now, result.Duration.Milliseconds(), result.RunID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("finish run: %w", err)
	}

	for _, step := range result.Steps {
		var escalation sql.NullString
		if step.Escalation != nil {
			data, err := json.Marshal(step.Escalation)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("marshal escalation for step %s: %w", step.StepID, err)
			}
			escalation = sql.NullString{String: string(data), Valid: true}
		}
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO run_steps (run_id, step_id, residence, status, output, error, escalation, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, result.RunID, step.StepID, step.AgentResidence, string(step.Status),
			step.Output, step.Error, escalation, step.Duration.Milliseconds())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save step %s: %w", step.StepID, err)
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run by ID. Returns nil if not found.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, goal, kind, COALESCE(output, ''), COALESCE(error, ''), started_at, finished_at, duration_ms
		FROM runs WHERE id = ?
	`, id)

	var r Run
	var startedAt string
	var finishedAt sql.NullString
	var durationMS int64
	err := row.Scan(&r.ID, &r.Goal, &r.Kind, &r.Output, &r.Error, &startedAt, &finishedAt, &durationMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	r.StartedAt, _ = parseTime(startedAt)
	if finishedAt.Valid {
		if t, err := parseTime(finishedAt.String); err == nil {
			r.FinishedAt = &t
		}
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}

// ListRuns lists runs, newest first, limited to the given count.
// limit <= 0 means no limit.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, goal, kind, COALESCE(output, ''), COALESCE(error, ''), started_at, finished_at, duration_ms
		FROM runs ORDER BY started_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		var finishedAt sql.NullString
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.Goal, &r.Kind, &r.Output, &r.Error, &startedAt, &finishedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = parseTime(startedAt)
		if finishedAt.Valid {
			if t, err := parseTime(finishedAt.String); err == nil {
				r.FinishedAt = &t
			}
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListStepResults returns the persisted step results for a run.
func (db *DB) ListStepResults(runID string) ([]models.StepResult, error) {
	rows, err := db.Query(`
		SELECT step_id, residence, status, COALESCE(output, ''), COALESCE(error, ''), escalation, duration_ms
		FROM run_steps WHERE run_id = ? ORDER BY step_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list step results: %w", err)
	}
	defer rows.Close()

	var steps []models.StepResult
	for rows.Next() {
		var s models.StepResult
		var escalation sql.NullString
		var durationMS int64
		if err := rows.Scan(&s.StepID, &s.AgentResidence, &s.Status, &s.Output, &s.Error, &escalation, &durationMS); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		if escalation.Valid {
			var info models.EscalationInfo
			if err := json.Unmarshal([]byte(escalation.String), &info); err == nil {
				s.Escalation = &info
			}
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// AppendEvent persists one orchestration event.
func (db *DB) AppendEvent(runID, eventType, stepID, message string) error {
	_, err := db.Exec(`
		INSERT INTO run_events (run_id, type, step_id, message, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, eventType, stepID, message, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns the events for a run in the order they were recorded.
func (db *DB) ListEvents(runID string) ([]RunEvent, error) {
	rows, err := db.Query(`
		SELECT seq, run_id, type, COALESCE(step_id, ''), COALESCE(message, ''), created_at
		FROM run_events WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var createdAt string
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Type, &e.StepID, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.CreatedAt, _ = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
