// Package contracts validates agent output per pipeline role and
// encodes the reflect-repair escalation policy for violations.
package contracts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/warden/pkg/models"
)

// BundleOnlySentinel is the output produced when no LLM is configured
// and a step resolves to its bundle alone. Every contract accepts it
// unconditionally.
const BundleOnlySentinel = "[bundle-only]"

// Action is the contract's verdict on how to handle a violation.
type Action string

const (
	// ActionRetry re-runs the stage once with feedback appended.
	ActionRetry Action = "retry"
	// ActionEscalateVerifier hands the output to a verifier agent.
	ActionEscalateVerifier Action = "escalate_verifier"
	// ActionError fails the stage outright.
	ActionError Action = "error"
)

// Decision pairs an Action with feedback for the retry prompt.
type Decision struct {
	// Action is what the orchestrator should do next.
	Action Action
	// Feedback is appended to the retry prompt for ActionRetry.
	Feedback string
}

// ParseResult is the outcome of validating one stage's output.
// Contracts return typed results and never raise errors.
type ParseResult struct {
	// Valid is true when the output satisfies the contract.
	Valid bool
	// BundleOnly marks the no-LLM sentinel output.
	BundleOnly bool
	// Fields holds the parsed payload for supervisor/parser stages.
	Fields map[string]string
	// Plan is the parsed DAG for the planner stage.
	Plan *models.PlannerOutput
	// Text is the accepted raw output for the synthesizer stage.
	Text string
	// Violation describes the failure when Valid is false.
	Violation *models.ContractViolation
}

// Contract validates output for one pipeline role.
type Contract interface {
	// Role identifies the pipeline stage this contract covers.
	Role() models.Role
	// Parse validates and extracts the stage output.
	Parse(output string) ParseResult
	// OnViolation decides how a violation is handled given how many
	// retries have already happened.
	OnViolation(v models.ContractViolation, retryCount int) Decision
}

// Registry holds the contract for each pipeline role. It is an explicit
// instance wired by the caller; there is no package-level registry.
type Registry struct {
	supervisor  Contract
	parser      Contract
	planner     Contract
	synthesizer Contract
}

// NewRegistry creates a registry with the default contract per role.
func NewRegistry() *Registry {
	return &Registry{
		supervisor:  &supervisorContract{},
		parser:      &parserContract{},
		planner:     &plannerContract{},
		synthesizer: &synthesizerContract{},
	}
}

// For returns the contract for the role. A role with no contract (or an
// unknown role) is treated permissively.
func (r *Registry) For(role models.Role) Contract {
	var c Contract
	switch role {
	case models.RoleSupervisor:
		c = r.supervisor
	case models.RoleParser:
		c = r.parser
	case models.RolePlanner:
		c = r.planner
	case models.RoleSynthesizer:
		c = r.synthesizer
	}
	if c == nil {
		return permissiveContract{role: role}
	}
	return c
}

// Set replaces the contract for a role. Passing nil makes the role
// permissive. Unknown roles are ignored.
func (r *Registry) Set(role models.Role, c Contract) {
	switch role {
	case models.RoleSupervisor:
		r.supervisor = c
	case models.RoleParser:
		r.parser = c
	case models.RolePlanner:
		r.planner = c
	case models.RoleSynthesizer:
		r.synthesizer = c
	}
}

// permissiveContract accepts everything. Used for roles with no
// registered contract.
type permissiveContract struct {
	role models.Role
}

func (p permissiveContract) Role() models.Role { return p.role }

func (p permissiveContract) Parse(output string) ParseResult {
	return ParseResult{Valid: true, Text: output, BundleOnly: output == BundleOnlySentinel}
}

func (p permissiveContract) OnViolation(v models.ContractViolation, retryCount int) Decision {
	return Decision{Action: ActionRetry, Feedback: v.SuggestedFeedback}
}

// extractJSONObject finds the outermost JSON object in free-form agent
// output. Agents routinely wrap JSON in prose or code fences.
func extractJSONObject(output string) (string, bool) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return output[start : end+1], true
}

// violation builds a ContractViolation with a trimmed output preview.
func violation(role models.Role, expected, received, feedback string) *models.ContractViolation {
	if len(received) > 200 {
		received = received[:200] + "... (truncated)"
	}
	return &models.ContractViolation{
		Role:              role,
		Expected:          expected,
		Received:          received,
		Recoverable:       true,
		SuggestedFeedback: feedback,
	}
}

// stagePolicy is the shared reflect-repair policy: first violation
// retries with feedback; afterwards the terminal action applies.
func stagePolicy(terminal Action) func(v models.ContractViolation, retryCount int) Decision {
	return func(v models.ContractViolation, retryCount int) Decision {
		if retryCount == 0 && v.Recoverable {
			feedback := v.SuggestedFeedback
			if feedback == "" {
				feedback = fmt.Sprintf("Expected %s but received %s. Reply with exactly the expected format.", v.Expected, v.Received)
			}
			return Decision{Action: ActionRetry, Feedback: feedback}
		}
		return Decision{Action: terminal}
	}
}

// supervisorContract validates routing-analysis output: a JSON object
// with a "route" field.
type supervisorContract struct{}

func (supervisorContract) Role() models.Role { return models.RoleSupervisor }

func (supervisorContract) Parse(output string) ParseResult {
	if output == BundleOnlySentinel {
		return ParseResult{Valid: true, BundleOnly: true}
	}

	raw, ok := extractJSONObject(output)
	if !ok {
		return ParseResult{Violation: violation(models.RoleSupervisor,
			`JSON object with a "route" field`, output,
			`Respond with a JSON object: {"route": "...", "reasoning": "..."}`)}
	}

	var parsed struct {
		Route     string `json:"route"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Route == "" {
		return ParseResult{Violation: violation(models.RoleSupervisor,
			`JSON object with a non-empty "route" field`, output,
			`Respond with a JSON object: {"route": "...", "reasoning": "..."}`)}
	}

	return ParseResult{Valid: true, Fields: map[string]string{
		"route":     parsed.Route,
		"reasoning": parsed.Reasoning,
	}}
}

func (supervisorContract) OnViolation(v models.ContractViolation, retryCount int) Decision {
	return stagePolicy(ActionEscalateVerifier)(v, retryCount)
}

// parserContract validates request normalization output: a JSON object
// with a "goal" field. Optional fields default rather than reject.
type parserContract struct{}

func (parserContract) Role() models.Role { return models.RoleParser }

func (parserContract) Parse(output string) ParseResult {
	if output == BundleOnlySentinel {
		return ParseResult{Valid: true, BundleOnly: true}
	}

	raw, ok := extractJSONObject(output)
	if !ok {
		return ParseResult{Violation: violation(models.RoleParser,
			`JSON object with a "goal" field`, output,
			`Respond with a JSON object: {"goal": "...", "context": "..."}`)}
	}

	var parsed struct {
		Goal    string `json:"goal"`
		Context string `json:"context"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Goal == "" {
		return ParseResult{Violation: violation(models.RoleParser,
			`JSON object with a non-empty "goal" field`, output,
			`Respond with a JSON object: {"goal": "...", "context": "..."}`)}
	}

	return ParseResult{Valid: true, Fields: map[string]string{
		"goal":    parsed.Goal,
		"context": parsed.Context,
	}}
}

func (parserContract) OnViolation(v models.ContractViolation, retryCount int) Decision {
	return stagePolicy(ActionEscalateVerifier)(v, retryCount)
}

// plannerContract validates DAG synthesis output. Planner violations
// are never dropped: a malformed plan is unsafe to execute, so the
// terminal action is escalation to a verifier, not a silent default.
type plannerContract struct{}

func (plannerContract) Role() models.Role { return models.RolePlanner }

func (plannerContract) Parse(output string) ParseResult {
	if output == BundleOnlySentinel {
		return ParseResult{Valid: true, BundleOnly: true}
	}

	raw, ok := extractJSONObject(output)
	if !ok {
		return ParseResult{Violation: violation(models.RolePlanner,
			"JSON object with goal_summary and a steps array", output,
			`Respond with a JSON plan: {"goal_summary": "...", "steps": [{"id": "...", "description": "...", "agent_residence": "...", "input": "..."}]}`)}
	}

	var plan models.PlannerOutput
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return ParseResult{Violation: violation(models.RolePlanner,
			"well-formed JSON plan object", output,
			"The plan JSON failed to parse. Emit only the JSON object, no commentary.")}
	}
	if len(plan.Steps) == 0 {
		return ParseResult{Violation: violation(models.RolePlanner,
			"a plan with at least one step", output,
			"The steps array is empty. Produce at least one step.")}
	}
	for i, step := range plan.Steps {
		if step.ID == "" || step.AgentResidence == "" {
			return ParseResult{Violation: violation(models.RolePlanner,
				"every step carrying id and agent_residence", output,
				fmt.Sprintf("Step at index %d is missing id or agent_residence.", i))}
		}
	}

	// Optional fields default rather than reject.
	if plan.GoalSummary == "" {
		plan.GoalSummary = "(no summary provided)"
	}
	if plan.Constraints == nil {
		plan.Constraints = []string{}
	}
	if plan.Risks == nil {
		plan.Risks = []string{}
	}

	return ParseResult{Valid: true, Plan: &plan}
}

func (plannerContract) OnViolation(v models.ContractViolation, retryCount int) Decision {
	return stagePolicy(ActionEscalateVerifier)(v, retryCount)
}

// synthesizerContract validates the merge stage: any non-empty text is
// acceptable. Synthesis failure is not privilege-relevant, so repeated
// violations terminate with a plain error.
type synthesizerContract struct{}

func (synthesizerContract) Role() models.Role { return models.RoleSynthesizer }

func (synthesizerContract) Parse(output string) ParseResult {
	if output == BundleOnlySentinel {
		return ParseResult{Valid: true, BundleOnly: true}
	}
	if strings.TrimSpace(output) == "" {
		return ParseResult{Violation: violation(models.RoleSynthesizer,
			"non-empty synthesized output", output,
			"Produce the merged result text.")}
	}
	return ParseResult{Valid: true, Text: output}
}

func (synthesizerContract) OnViolation(v models.ContractViolation, retryCount int) Decision {
	return stagePolicy(ActionError)(v, retryCount)
}
