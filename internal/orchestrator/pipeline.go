package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/warden/internal/contracts"
	"github.com/ShayCichocki/warden/pkg/models"
)

// stageOutcome is the result of one pipeline stage after the
// reflect-repair loop has settled.
type stageOutcome struct {
	result  models.StepResult
	parsed  contracts.ParseResult
	failed  bool
	failMsg string
}

// runPipeline drives the fixed stage sequence and plan execution for
// one run. Every exit path returns a well-formed terminal result.
func (o *Orchestrator) runPipeline(ctx context.Context, runID string, req RunRequest, start time.Time) *models.OrchestrationResult {
	var steps []models.StepResult

	fail := func(msg string) *models.OrchestrationResult {
		return &models.OrchestrationResult{Kind: models.ResultError, RunID: runID, Steps: steps, Error: msg}
	}
	escalate := func(info *models.EscalationInfo) *models.OrchestrationResult {
		return &models.OrchestrationResult{Kind: models.ResultEscalation, RunID: runID, Steps: steps, Escalation: info}
	}
	cancelled := func() *models.OrchestrationResult {
		return &models.OrchestrationResult{Kind: models.ResultCancelled, RunID: runID, Steps: steps, Error: "run cancelled"}
	}

	if ctx.Err() != nil {
		return cancelled()
	}

	sup := o.runStage(ctx, runID, models.RoleSupervisor, o.supervisorPrompt(req.Input), start)
	steps = append(steps, sup.result)
	if sup.result.Status == models.StepStatusEscalated {
		return escalate(sup.result.Escalation)
	}
	if sup.failed {
		return fail(sup.failMsg)
	}
	if route := sup.parsed.Fields["route"]; route != "" {
		o.debugLog("[orchestrator] run %s: supervisor route=%s", runID, route)
	}

	if ctx.Err() != nil {
		return cancelled()
	}

	par := o.runStage(ctx, runID, models.RoleParser, o.parserPrompt(req.Input), start)
	steps = append(steps, par.result)
	if par.result.Status == models.StepStatusEscalated {
		return escalate(par.result.Escalation)
	}
	if par.failed {
		return fail(par.failMsg)
	}
	goal := req.Input
	if g := par.parsed.Fields["goal"]; g != "" {
		goal = g
	}

	plan := req.Plan
	if plan == nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		pl := o.runStage(ctx, runID, models.RolePlanner, o.plannerPrompt(goal), start)
		steps = append(steps, pl.result)
		if pl.result.Status == models.StepStatusEscalated {
			return escalate(pl.result.Escalation)
		}
		if pl.failed {
			return fail(pl.failMsg)
		}
		if pl.parsed.BundleOnly || pl.parsed.Plan == nil {
			plan = o.defaultPlan(goal)
		} else {
			plan = pl.parsed.Plan
		}
	}

	verdict := o.validator.Validate(plan, o.constraints)
	if !verdict.Valid {
		return fail(fmt.Sprintf("%s: %s: %s", models.ErrInvalidPlan, verdict.Reason, verdict.Details))
	}
	o.debugLog("[orchestrator] run %s: plan valid, %d steps", runID, len(plan.Steps))

	stepResults, aborted, wasCancelled := o.executePlan(ctx, runID, plan, start)
	steps = append(steps, stepResults...)
	if wasCancelled {
		return cancelled()
	}

	kind := terminalKind(steps, aborted)
	switch kind {
	case models.ResultEscalation:
		return escalate(firstEscalation(steps))
	case models.ResultError:
		return fail(firstError(steps))
	}

	if ctx.Err() != nil {
		return cancelled()
	}

	syn := o.runStage(ctx, runID, models.RoleSynthesizer, o.synthesizerPrompt(goal, stepResults), start)
	steps = append(steps, syn.result)
	if syn.result.Status == models.StepStatusEscalated {
		return escalate(syn.result.Escalation)
	}
	if syn.failed {
		return fail(syn.failMsg)
	}

	output := syn.parsed.Text
	if syn.parsed.BundleOnly {
		output = joinOutputs(stepResults)
	}

	return &models.OrchestrationResult{
		Kind:   kind,
		RunID:  runID,
		Steps:  steps,
		Output: output,
	}
}

// runStage executes one pipeline stage through runStep with the role's
// output contract: an invalid output gets one retry with feedback, then
// the contract's terminal action applies.
func (o *Orchestrator) runStage(ctx context.Context, runID string, role models.Role, prompt string, runStart time.Time) stageOutcome {
	residence := o.stageResidence(role)
	contract := o.contracts.For(role)

	retries := 0
	input := prompt
	for {
		result := o.runStep(ctx, runID, string(role), residence, input, runStart)
		if result.Status == models.StepStatusEscalated {
			return stageOutcome{result: result}
		}
		if result.Status != models.StepStatusSuccess {
			return stageOutcome{result: result, failed: true, failMsg: result.Error}
		}

		parsed := contract.Parse(result.Output)
		if parsed.Valid {
			return stageOutcome{result: result, parsed: parsed}
		}

		decision := contract.OnViolation(*parsed.Violation, retries)
		switch decision.Action {
		case contracts.ActionRetry:
			retries++
			o.debugLog("[orchestrator] run %s: %s output rejected, retry %d: %s", runID, role, retries, decision.Feedback)
			input = prompt + "\n\nYour previous output was rejected: " + decision.Feedback
		case contracts.ActionEscalateVerifier:
			result.Status = models.StepStatusError
			result.Error = fmt.Sprintf("%s: %s output invalid after %d retries, escalated to verifier: expected %s",
				models.ErrContractViolation, role, retries, parsed.Violation.Expected)
			return stageOutcome{result: result, failed: true, failMsg: result.Error}
		default:
			result.Status = models.StepStatusError
			result.Error = fmt.Sprintf("%s: %s output invalid after %d retries: expected %s",
				models.ErrContractViolation, role, retries, parsed.Violation.Expected)
			return stageOutcome{result: result, failed: true, failMsg: result.Error}
		}
	}
}

func (o *Orchestrator) supervisorPrompt(input string) string {
	return "Classify the following request for orchestration. Respond with a JSON object " +
		`containing a "route" field (one of "pipeline", "direct", "reject") and an optional "reason" field.` +
		"\n\nRequest:\n" + input
}

func (o *Orchestrator) parserPrompt(input string) string {
	return "Normalize the following request into a structured task. Respond with a JSON object " +
		`containing a "goal" field and an optional "context" field.` +
		"\n\nRequest:\n" + input
}

func (o *Orchestrator) plannerPrompt(goal string) string {
	var b strings.Builder
	b.WriteString("Produce an execution plan for the goal below. Respond with a JSON object containing ")
	b.WriteString(`"goal_summary" and "steps", where each step has "id", "description", "agent_residence", `)
	b.WriteString(`"input", optional "depends_on" (array of step ids), and optional "parallel" (bool).`)
	fmt.Fprintf(&b, "\n\nLimits: at most %d steps, at most %d parallel steps per batch. ",
		o.constraints.MaxSteps, o.constraints.MaxParallelism)
	fmt.Fprintf(&b, "Every agent_residence must be under %q.", o.trustRoot.String())
	b.WriteString("\n\nGoal:\n")
	b.WriteString(goal)
	return b.String()
}

func (o *Orchestrator) synthesizerPrompt(goal string, steps []models.StepResult) string {
	var b strings.Builder
	b.WriteString("Merge the step outputs below into a single coherent answer for the goal.\n\nGoal:\n")
	b.WriteString(goal)
	b.WriteString("\n\nStep outputs:\n")
	for _, s := range steps {
		fmt.Fprintf(&b, "--- step %s (%s) ---\n", s.StepID, s.Status)
		if s.Output != "" {
			b.WriteString(s.Output)
			b.WriteString("\n")
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", s.Error)
		}
	}
	return b.String()
}
