// Package orchestrator runs the fixed agent pipeline and executes
// validated plans under the trust model, bounded parallelism, and the
// output-contract repair loop.
package orchestrator

import (
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

// EventType represents the type of orchestration event.
type EventType string

const (
	// EventRunStarted indicates a run has begun.
	EventRunStarted EventType = "run_started"
	// EventRunCompleted indicates a run has reached its terminal result.
	// Exactly one fires per run, regardless of how the run concludes.
	EventRunCompleted EventType = "run_completed"
	// EventStepStarted indicates a pipeline stage or plan step has started.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a pipeline stage or plan step finished.
	EventStepCompleted EventType = "step_completed"
	// EventEscalation indicates a step hit a privilege boundary.
	EventEscalation EventType = "escalation"
)

// Event is emitted by the orchestrator to a caller-supplied handler.
// These events drive the TUI and the persisted run log.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// RunID is the run the event belongs to.
	RunID string
	// StepID is the related pipeline stage or plan step, if applicable.
	StepID string
	// Residence is the residence of the related step, if applicable.
	Residence string
	// Status is the step outcome for step_completed events.
	Status models.StepStatus
	// Kind is the terminal result kind for run_completed events.
	Kind models.ResultKind
	// Message provides additional context about the event.
	Message string
	// Escalation carries the escalation signal for escalation events.
	Escalation *models.EscalationInfo
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
