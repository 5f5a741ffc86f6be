package models

import "time"

// StepStatus represents the outcome of a single step execution.
type StepStatus string

const (
	// StepStatusSuccess indicates the step completed successfully.
	StepStatusSuccess StepStatus = "success"
	// StepStatusError indicates the step failed.
	StepStatusError StepStatus = "error"
	// StepStatusSkipped indicates the step was never attempted.
	StepStatusSkipped StepStatus = "skipped"
	// StepStatusEscalated indicates the step needs a higher-privilege grant.
	StepStatusEscalated StepStatus = "escalated"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusSuccess, StepStatusError, StepStatusSkipped, StepStatusEscalated:
		return true
	default:
		return false
	}
}

// EscalationInfo is the structured signal that a step cannot proceed
// without a higher-privilege grant. It is not a fatal error.
type EscalationInfo struct {
	// MissingSkill is the ID of the skill that triggered the escalation.
	MissingSkill string `json:"missing_skill"`
	// RequestedAction describes what the step was trying to do.
	RequestedAction string `json:"requested_action"`
	// Residence is the residence path the escalation originated from.
	Residence string `json:"residence"`
	// PolicyRef names the policy rule that blocked the action.
	PolicyRef string `json:"policy_ref"`
	// SuggestedAlternatives lists concrete ways to proceed without the grant.
	SuggestedAlternatives []string `json:"suggested_alternatives,omitempty"`
	// Capability is the missing capability, when the gap is capability-shaped.
	Capability Capability `json:"capability,omitempty"`
	// SkillDescription carries the blocked skill's description for context.
	SkillDescription string `json:"skill_description,omitempty"`
}

// StepResult is the recorded outcome of one plan step or pipeline stage.
type StepResult struct {
	// StepID is the ID of the step this result belongs to.
	StepID string `json:"step_id"`
	// AgentResidence is the residence the step ran at.
	AgentResidence string `json:"agent_residence"`
	// Status is the step outcome.
	Status StepStatus `json:"status"`
	// Output is the agent output for successful steps.
	Output string `json:"output,omitempty"`
	// Error contains the failure message for error steps.
	Error string `json:"error,omitempty"`
	// Escalation carries the escalation signal for escalated steps.
	Escalation *EscalationInfo `json:"escalation,omitempty"`
	// Duration is how long the step took.
	Duration time.Duration `json:"duration_ms"`
	// PaperTrail lists files recording the step's prompt and provenance.
	PaperTrail []string `json:"paper_trail,omitempty"`
}

// ResultKind is the terminal classification of an orchestration run.
type ResultKind string

const (
	// ResultOK indicates every step succeeded.
	ResultOK ResultKind = "ok"
	// ResultPartial indicates some steps failed without aborting the run.
	ResultPartial ResultKind = "partial"
	// ResultEscalation indicates at least one step escalated.
	ResultEscalation ResultKind = "escalation"
	// ResultError indicates the run aborted on error or an internal failure.
	ResultError ResultKind = "error"
	// ResultCancelled indicates the run was cancelled through the task registry.
	ResultCancelled ResultKind = "cancelled"
)

// Valid returns true if the kind is a known value.
func (k ResultKind) Valid() bool {
	switch k {
	case ResultOK, ResultPartial, ResultEscalation, ResultError, ResultCancelled:
		return true
	default:
		return false
	}
}

// ExitCode maps the result kind to the process exit-code contract.
func (k ResultKind) ExitCode() int {
	switch k {
	case ResultOK:
		return 0
	case ResultPartial:
		return 10
	case ResultEscalation:
		return 20
	case ResultError:
		return 30
	case ResultCancelled:
		return 40
	default:
		return 30
	}
}

// OrchestrationResult is the single authoritative terminus of a run.
// Every run produces exactly one, regardless of how it concludes.
type OrchestrationResult struct {
	// Kind is the terminal classification.
	Kind ResultKind `json:"kind"`
	// RunID identifies the orchestration run.
	RunID string `json:"run_id"`
	// Steps carries the full per-step result list for every kind.
	Steps []StepResult `json:"steps"`
	// Output is the synthesized final output for ok/partial runs.
	Output string `json:"output,omitempty"`
	// Escalation is the first escalation encountered, for escalation runs.
	Escalation *EscalationInfo `json:"escalation,omitempty"`
	// Error describes the failure for error runs.
	Error string `json:"error,omitempty"`
	// Duration is the total wall-clock time of the run.
	Duration time.Duration `json:"duration_ms"`
}
