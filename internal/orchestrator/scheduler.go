package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

// executePlan runs a validated plan's steps in dependency order:
// repeatedly compute the ready batch, run its sequential steps one at a
// time in array order, then fan out its parallel steps through the
// limiter. Returns the results so far, whether abortOnError stopped the
// run, and whether cancellation did.
func (o *Orchestrator) executePlan(ctx context.Context, runID string, plan *models.PlannerOutput, runStart time.Time) (results []models.StepResult, aborted, cancelled bool) {
	completed := make(map[string]bool, len(plan.Steps))

	for len(completed) < len(plan.Steps) {
		if ctx.Err() != nil {
			return results, false, true
		}

		var sequential, parallel []models.PlanStep
		for _, step := range plan.Steps {
			if completed[step.ID] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !completed[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			if step.Parallel {
				parallel = append(parallel, step)
			} else {
				sequential = append(sequential, step)
			}
		}

		if len(sequential) == 0 && len(parallel) == 0 {
			// Unsatisfiable dependencies. The validator catches cycles
			// before execution, so this is a defensive stop.
			o.debugLog("[orchestrator] run %s: no ready steps with %d of %d completed, stopping",
				runID, len(completed), len(plan.Steps))
			return results, false, false
		}

		batchErr := false
		for _, step := range sequential {
			if ctx.Err() != nil {
				return results, false, true
			}
			result := o.runLimited(ctx, runID, step, runStart)
			results = append(results, result)
			completed[step.ID] = true
			if result.Status == models.StepStatusError {
				batchErr = true
			}
		}
		if o.abortOnError && batchErr {
			return results, true, false
		}

		if len(parallel) > 0 {
			if ctx.Err() != nil {
				return results, false, true
			}
			batch := make([]models.StepResult, len(parallel))
			var wg sync.WaitGroup
			for i, step := range parallel {
				wg.Add(1)
				go func(i int, step models.PlanStep) {
					defer wg.Done()
					batch[i] = o.runLimited(ctx, runID, step, runStart)
				}(i, step)
			}
			wg.Wait()

			batchErr = false
			for i, result := range batch {
				results = append(results, result)
				completed[parallel[i].ID] = true
				if result.Status == models.StepStatusError {
					batchErr = true
				}
			}
			if o.abortOnError && batchErr {
				return results, true, false
			}
		}
	}

	return results, false, false
}

// runLimited executes one plan step through the shared limiter. A
// limiter failure (queue timeout, cancellation while queued) becomes a
// step error rather than an exception.
func (o *Orchestrator) runLimited(ctx context.Context, runID string, step models.PlanStep, runStart time.Time) models.StepResult {
	var result models.StepResult
	err := o.limiter.Run(ctx, func() error {
		result = o.runStep(ctx, runID, step.ID, step.AgentResidence, step.Input, runStart)
		return nil
	})
	if err != nil {
		return models.StepResult{
			StepID:         step.ID,
			AgentResidence: step.AgentResidence,
			Status:         models.StepStatusError,
			Error:          normalizeLimiterError(err),
		}
	}
	return result
}
