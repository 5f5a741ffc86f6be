package models

// PlanStep is a single unit of work in a planner-produced DAG.
// Steps are immutable once the plan enters execution.
type PlanStep struct {
	// ID is the step identifier, unique within its plan.
	ID string `json:"id" yaml:"id"`
	// Description is the human-readable intent of the step.
	Description string `json:"description" yaml:"description"`
	// AgentResidence is the residence path of the agent that runs the step.
	AgentResidence string `json:"agent_residence" yaml:"agent_residence"`
	// Input is the task text handed to the agent.
	Input string `json:"input" yaml:"input"`
	// DependsOn lists step IDs that must complete before this step.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Parallel marks the step as safe to run concurrently with other
	// parallel steps sharing the same dependency set.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// EscalationRequest is a planner-proposed capability ask. Requests are
// advisory only; they never grant anything by themselves.
type EscalationRequest struct {
	// Capability is the capability being requested.
	Capability Capability `json:"capability" yaml:"capability"`
	// Reason explains why the planner believes the capability is needed.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	// StepID optionally ties the request to a specific step.
	StepID string `json:"step_id,omitempty" yaml:"step_id,omitempty"`
}

// PlannerOutput is the full product of the planner stage: the step DAG
// plus the planner's own assessment of constraints and risks.
type PlannerOutput struct {
	// GoalSummary restates the goal the plan addresses.
	GoalSummary string `json:"goal_summary" yaml:"goal_summary"`
	// Steps is the DAG of plan steps.
	Steps []PlanStep `json:"steps" yaml:"steps"`
	// Constraints lists constraints the planner committed to.
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	// Risks lists risks the planner identified.
	Risks []string `json:"risks,omitempty" yaml:"risks,omitempty"`
	// EscalationRequests are planner-proposed, non-self-executing
	// capability asks.
	EscalationRequests []EscalationRequest `json:"escalation_requests,omitempty" yaml:"escalation_requests,omitempty"`
}

// StepByID returns the step with the given ID, or nil if absent.
func (p *PlannerOutput) StepByID(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}
