package models

import "time"

// TaskStatus represents the lifecycle state of an orchestration task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for one-way end states. Once terminal, a task
// never transitions again.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskState tracks one orchestration run's lifecycle in the registry.
type TaskState struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task last changed.
	UpdatedAt time.Time `json:"updated_at"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Input is the original request that started the run.
	Input string `json:"input"`
	// Result is the terminal result, set exactly once.
	Result *OrchestrationResult `json:"result,omitempty"`
	// CurrentStep is the ID of the step in flight, if any.
	CurrentStep string `json:"current_step,omitempty"`
}
