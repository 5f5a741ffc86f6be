// Package registry tracks orchestration-run lifecycle state. It
// supports idempotent completion and cooperative cancellation, and
// evicts the oldest task when a capacity bound is reached.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/warden/pkg/models"
)

// ErrTaskNotFound indicates the task ID is unknown to the registry.
var ErrTaskNotFound = errors.New("task not found")

// ErrInvalidTransition indicates a disallowed status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// DefaultCapacity bounds the registry when no capacity is configured.
const DefaultCapacity = 256

// entry pairs a task state with its cancellation handle.
type entry struct {
	state  models.TaskState
	ctx    context.Context
	cancel context.CancelFunc
}

// Registry maps task IDs to task states. All access is serialized by a
// mutex: the registry is safe for concurrent use from any goroutine.
type Registry struct {
	mu       sync.Mutex
	capacity int
	tasks    map[string]*entry
	now      func() time.Time
}

// New creates a Registry bounded to capacity tasks. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		tasks:    make(map[string]*entry),
		now:      time.Now,
	}
}

// Create allocates a new pending task and its cancellation handle.
// The returned context is cancelled when the task is cancelled; thread
// it into the run's LLM calls and scheduling loop. When the registry is
// full, the single oldest task (by creation time) is evicted first.
func (r *Registry) Create(parent context.Context, input string) (models.TaskState, context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	now := r.now()
	state := models.TaskState{
		ID:        uuid.New().String()[:8],
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.TaskStatusPending,
		Input:     input,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.tasks) >= r.capacity {
		r.evictOldestLocked()
	}
	r.tasks[state.ID] = &entry{state: state, ctx: ctx, cancel: cancel}
	return state, ctx
}

// evictOldestLocked removes the single oldest task. Caller holds r.mu.
func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, e := range r.tasks {
		if oldestID == "" || e.state.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = e.state.CreatedAt
		}
	}
	if oldestID != "" {
		r.tasks[oldestID].cancel()
		delete(r.tasks, oldestID)
	}
}

// Get returns a copy of the task state.
func (r *Registry) Get(id string) (models.TaskState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return models.TaskState{}, ErrTaskNotFound
	}
	return e.state, nil
}

// List returns copies of all task states, newest first.
func (r *Registry) List() []models.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.TaskState, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// UpdateStatus transitions a pending task to running. No other direct
// transition is exposed; terminal transitions go through SetResult and
// Cancel.
func (r *Registry) UpdateStatus(id string, status models.TaskStatus) error {
	if status != models.TaskStatusRunning {
		return ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if e.state.Status != models.TaskStatusPending {
		return ErrInvalidTransition
	}
	e.state.Status = models.TaskStatusRunning
	e.state.UpdatedAt = r.now()
	return nil
}

// SetCurrentStep records the step currently in flight for a task.
// Unknown tasks are ignored; this is an advisory progress marker.
func (r *Registry) SetCurrentStep(id, stepID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tasks[id]; ok && !e.state.Status.Terminal() {
		e.state.CurrentStep = stepID
		e.state.UpdatedAt = r.now()
	}
}

// SetResultOutcome reports how SetResult resolved.
type SetResultOutcome struct {
	// WasIdempotent is true when the task was already terminal with a
	// result and the call changed nothing.
	WasIdempotent bool
}

// SetResult records the terminal result for a task. It is idempotent:
// once a task is terminal and carries a result, repeated calls return
// WasIdempotent=true with no mutation. This protects against a race
// between normal completion and a concurrent cancellation path
// double-finalizing the same task.
func (r *Registry) SetResult(id string, result *models.OrchestrationResult) (SetResultOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return SetResultOutcome{}, ErrTaskNotFound
	}

	if e.state.Status.Terminal() {
		if e.state.Result != nil {
			return SetResultOutcome{WasIdempotent: true}, nil
		}
		// Terminal without a result: a cancel won the race. Attach the
		// result but keep the terminal status.
		e.state.Result = result
		e.state.UpdatedAt = r.now()
		return SetResultOutcome{}, nil
	}

	e.state.Result = result
	e.state.Status = statusForKind(result)
	e.state.CurrentStep = ""
	e.state.UpdatedAt = r.now()
	return SetResultOutcome{}, nil
}

// statusForKind maps a terminal result kind to a task status.
func statusForKind(result *models.OrchestrationResult) models.TaskStatus {
	if result == nil {
		return models.TaskStatusFailed
	}
	switch result.Kind {
	case models.ResultError:
		return models.TaskStatusFailed
	case models.ResultCancelled:
		return models.TaskStatusCancelled
	default:
		return models.TaskStatusCompleted
	}
}

// Cancel cancels a pending or running task: the status becomes
// cancelled and the task's cancellation handle fires so in-flight
// cooperative work can abort. Returns false for tasks that are already
// terminal or unknown.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return false
	}
	if e.state.Status.Terminal() {
		return false
	}

	e.state.Status = models.TaskStatusCancelled
	e.state.UpdatedAt = r.now()
	e.cancel()
	return true
}

// Context returns the cancellation context for a task.
func (r *Registry) Context(id string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return e.ctx, nil
}
