package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/warden/internal/bundle"
	"github.com/ShayCichocki/warden/internal/contracts"
	"github.com/ShayCichocki/warden/internal/limiter"
	"github.com/ShayCichocki/warden/internal/llm"
	"github.com/ShayCichocki/warden/internal/trust"
	"github.com/ShayCichocki/warden/pkg/models"
)

// runStep is the single execution primitive shared by pipeline stages
// and plan steps: resolve the bundle, check the privilege boundary,
// then invoke the LLM (or return a bundle-only result). Step events
// bracket the execution.
func (o *Orchestrator) runStep(ctx context.Context, runID, stepID, residence, input string, runStart time.Time) models.StepResult {
	stepStart := o.now()
	o.registry.SetCurrentStep(runID, stepID)
	o.publish(Event{
		Type:      EventStepStarted,
		RunID:     runID,
		StepID:    stepID,
		Residence: residence,
		Timestamp: stepStart,
	})

	result := o.executeStep(ctx, runID, stepID, residence, input, runStart)
	result.Duration = o.now().Sub(stepStart)

	if result.Status == models.StepStatusEscalated {
		o.publish(Event{
			Type:       EventEscalation,
			RunID:      runID,
			StepID:     stepID,
			Residence:  residence,
			Escalation: result.Escalation,
			Timestamp:  o.now(),
		})
	}
	o.publish(Event{
		Type:      EventStepCompleted,
		RunID:     runID,
		StepID:    stepID,
		Residence: residence,
		Status:    result.Status,
		Message:   result.Error,
		Timestamp: o.now(),
	})
	return result
}

func (o *Orchestrator) executeStep(ctx context.Context, runID, stepID, residence, input string, runStart time.Time) (result models.StepResult) {
	result = models.StepResult{StepID: stepID, AgentResidence: residence}

	// Steps run inside limiter goroutines; a panic here must become a
	// step error, not a process crash.
	defer func() {
		if r := recover(); r != nil {
			o.debugLog("[orchestrator] run %s: step %s panicked: %v", runID, stepID, r)
			result.Status = models.StepStatusError
			result.Error = fmt.Sprintf("%s: step panic: %v", models.ErrInternal, r)
			result.Escalation = nil
		}
	}()

	// Total-timeout check happens before any work; a step already in
	// flight is never preempted.
	if o.totalTimeout > 0 && o.now().Sub(runStart) > o.totalTimeout {
		result.Status = models.StepStatusError
		result.Error = fmt.Sprintf("%s: run exceeded total timeout of %s before step start", models.ErrInternal, o.totalTimeout)
		return result
	}

	inv := o.resolver.InvokeSafe(bundle.InvokeRequest{
		RunID:         runID,
		StepID:        stepID,
		ResidencePath: residence,
		Task:          input,
	})
	switch inv.Kind {
	case bundle.KindEscalation:
		result.Status = models.StepStatusEscalated
		result.Escalation = inv.Escalation
		return result
	case bundle.KindError:
		result.Status = models.StepStatusError
		result.Error = fmt.Sprintf("%s: %s", inv.Code, inv.Message)
		return result
	}

	b := inv.Bundle
	result.PaperTrail = b.PaperTrail

	if escalation := o.checkForEscalation(b); escalation != nil {
		result.Status = models.StepStatusEscalated
		result.Escalation = escalation
		return result
	}

	if !o.client.IsConfigured() {
		result.Status = models.StepStatusSuccess
		result.Output = contracts.BundleOnlySentinel
		return result
	}

	resp, err := o.client.Generate(ctx, llm.GenerateRequest{
		Task:      b.Prompt,
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		result.Status = models.StepStatusError
		result.Error = normalizeGenerateError(err)
		return result
	}

	result.Status = models.StepStatusSuccess
	result.Output = resp.Text
	return result
}

// checkForEscalation validates the bundle's skills against the
// residence's own privilege. An escalatable missing capability wins;
// failing that, a non-escalatable privilege gap is still surfaced so
// the caller sees why the residence cannot do its declared work.
func (o *Orchestrator) checkForEscalation(b *bundle.Bundle) *models.EscalationInfo {
	index := models.NewSkillsIndex(b.Residence)
	for _, s := range b.Skills {
		index.Put(s)
	}
	report := trust.ValidateSkillsIndex(index, b.Residence.Privilege())

	for _, d := range report.Details {
		check := d.Check
		if check.Allowed || check.Reason != trust.DenialMissingCapability || !check.Escalate {
			continue
		}
		return &models.EscalationInfo{
			MissingSkill:     d.Skill.ID,
			RequestedAction:  requestedAction(d.Skill),
			Residence:        b.Residence.String(),
			PolicyRef:        fmt.Sprintf("capability:%s", check.Capability),
			Capability:       check.Capability,
			SkillDescription: d.Skill.Description,
			SuggestedAlternatives: []string{
				fmt.Sprintf("request the %s capability for residence %s", check.Capability, b.Residence),
				fmt.Sprintf("use a skill that does not require %s", check.Capability),
				"decompose the task so the capability-gated part runs at a higher-privilege residence",
			},
		}
	}

	for _, d := range report.Details {
		check := d.Check
		if check.Allowed || check.Reason != trust.DenialInsufficientPrivilege {
			continue
		}
		return &models.EscalationInfo{
			MissingSkill:     d.Skill.ID,
			RequestedAction:  requestedAction(d.Skill),
			Residence:        b.Residence.String(),
			PolicyRef:        fmt.Sprintf("privilege:%s", check.Required),
			SkillDescription: d.Skill.Description,
			SuggestedAlternatives: []string{
				fmt.Sprintf("run the step at a residence with %s privilege or higher", check.Required),
				fmt.Sprintf("remove the %s skill from the step's declaration chain", d.Skill.ID),
			},
		}
	}

	return nil
}

func requestedAction(skill models.Skill) string {
	if skill.Description != "" {
		return skill.Description
	}
	return fmt.Sprintf("execute skill %s", skill.ID)
}

// normalizeGenerateError flattens an LLM failure into a step error
// message; raw errors never cross the core boundary.
func normalizeGenerateError(err error) string {
	var genErr *llm.GenerateError
	if errors.As(err, &genErr) {
		if genErr.Retryable {
			return fmt.Sprintf("%s: llm: %s (retryable)", models.ErrInternal, genErr.Message)
		}
		return fmt.Sprintf("%s: llm: %s", models.ErrInternal, genErr.Message)
	}
	return fmt.Sprintf("%s: llm: %v", models.ErrInternal, err)
}

// normalizeLimiterError converts a limiter failure into a step error
// message, preserving the retry hint for queue timeouts.
func normalizeLimiterError(err error) string {
	var capErr *limiter.CapacityExceededError
	if errors.As(err, &capErr) {
		return fmt.Sprintf("%s: limiter queue timeout, retry after %s", models.ErrInternal, capErr.RetryAfter)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("%s: cancelled while waiting for a slot", models.ErrInternal)
	}
	return fmt.Sprintf("%s: limiter: %v", models.ErrInternal, err)
}
