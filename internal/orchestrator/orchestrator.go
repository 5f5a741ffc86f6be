package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/warden/internal/bundle"
	"github.com/ShayCichocki/warden/internal/contracts"
	"github.com/ShayCichocki/warden/internal/limiter"
	"github.com/ShayCichocki/warden/internal/llm"
	"github.com/ShayCichocki/warden/internal/plancheck"
	"github.com/ShayCichocki/warden/internal/registry"
	"github.com/ShayCichocki/warden/pkg/models"
)

// Orchestrator is the top-level scheduler. It runs the fixed pipeline
// (supervisor, parser, planner, execution, synthesizer), executes a
// validated plan's steps under the trust model and the shared limiter,
// and always produces exactly one terminal result per run.
type Orchestrator struct {
	trustRoot   models.Residence
	resolver    bundle.Resolver
	client      llm.Client
	limiter     *limiter.Limiter
	registry    *registry.Registry
	contracts   *contracts.Registry
	validator   *plancheck.Validator
	constraints plancheck.Constraints

	publisher    *publisher
	abortOnError bool
	totalTimeout time.Duration
	maxTokens    int64
	debugLog     func(format string, args ...interface{})
	now          func() time.Time
}

// RunRequest describes one orchestration run.
type RunRequest struct {
	// Input is the caller's goal.
	Input string
	// Plan, when supplied, skips the planner stage. It is still validated.
	Plan *models.PlannerOutput
}

// New creates an Orchestrator. The trust root and bundle resolver are
// required; everything else defaults to a working standalone setup.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.TrustRoot.IsZero() {
		return nil, errors.New("orchestrator: trust root is required")
	}
	if req.Resolver == nil {
		return nil, errors.New("orchestrator: bundle resolver is required")
	}

	options := &orchestratorOptions{
		eventBufferSize: 256,
		maxTokens:       4096,
	}
	for _, opt := range opts {
		opt(options)
	}

	constraints := plancheck.ConstraintsFromPrivilege(req.TrustRoot.Privilege())
	if options.constraints != nil {
		constraints = *options.constraints
	}

	o := &Orchestrator{
		trustRoot:    req.TrustRoot,
		resolver:     req.Resolver,
		client:       options.client,
		limiter:      options.limiter,
		registry:     options.registry,
		contracts:    options.contracts,
		validator:    options.validator,
		constraints:  constraints,
		abortOnError: options.abortOnError,
		totalTimeout: options.totalTimeout,
		maxTokens:    options.maxTokens,
		debugLog:     options.debugLog,
		now:          time.Now,
	}

	if o.client == nil {
		o.client = llm.Unconfigured{}
	}
	if o.limiter == nil {
		l, err := limiter.New(constraints.MaxParallelism, 0)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: default limiter: %w", err)
		}
		o.limiter = l
	}
	if o.registry == nil {
		o.registry = registry.New(registry.DefaultCapacity)
	}
	if o.contracts == nil {
		o.contracts = contracts.NewRegistry()
	}
	if o.validator == nil {
		o.validator = plancheck.New(req.TrustRoot)
	}
	if o.debugLog == nil {
		o.debugLog = func(format string, args ...interface{}) {}
	}
	if options.eventHandler != nil {
		o.publisher = newPublisher(options.eventHandler, options.eventBufferSize)
	}

	return o, nil
}

// Registry returns the task registry runs are tracked in.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// DroppedEvents returns how many events have been dropped under
// backpressure. Zero when no handler is subscribed.
func (o *Orchestrator) DroppedEvents() uint64 {
	if o.publisher == nil {
		return 0
	}
	return o.publisher.DroppedCount()
}

// Close drains and stops the event consumer. Call after the last run.
func (o *Orchestrator) Close() {
	if o.publisher != nil {
		o.publisher.Close()
	}
}

// Run executes one orchestration. It never returns a Go error and never
// lets a panic escape: every failure path lands in the terminal result.
// Exactly one run_completed event fires per call.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (result *models.OrchestrationResult) {
	start := o.now()
	task, runCtx := o.registry.Create(ctx, req.Input)
	runID := task.ID
	if err := o.registry.UpdateStatus(runID, models.TaskStatusRunning); err != nil {
		o.debugLog("[orchestrator] run %s: mark running: %v", runID, err)
	}

	defer func() {
		if r := recover(); r != nil {
			o.debugLog("[orchestrator] run %s: recovered panic: %v", runID, r)
			result = &models.OrchestrationResult{
				Kind:  models.ResultError,
				RunID: runID,
				Error: fmt.Sprintf("internal: %v", r),
			}
		}
		if result == nil {
			result = &models.OrchestrationResult{
				Kind:  models.ResultError,
				RunID: runID,
				Error: "internal: run produced no result",
			}
		}
		result.Duration = o.now().Sub(start)
		if _, err := o.registry.SetResult(runID, result); err != nil {
			o.debugLog("[orchestrator] run %s: set result: %v", runID, err)
		}
		o.publish(Event{
			Type:      EventRunCompleted,
			RunID:     runID,
			Kind:      result.Kind,
			Message:   result.Error,
			Timestamp: o.now(),
		})
	}()

	o.publish(Event{Type: EventRunStarted, RunID: runID, Message: req.Input, Timestamp: o.now()})

	result = o.runPipeline(runCtx, runID, req, start)
	return result
}

// publish sends an event if a handler is subscribed.
func (o *Orchestrator) publish(event Event) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(event)
}

// stageResidence returns the residence a pipeline stage runs at. Stages
// are system agents under the trust root with root privilege.
func (o *Orchestrator) stageResidence(role models.Role) string {
	return o.trustRoot.String() + "/root/" + string(role)
}

// defaultPlan is the single-step fallback used when the planner has no
// LLM to synthesize a DAG with.
func (o *Orchestrator) defaultPlan(goal string) *models.PlannerOutput {
	return &models.PlannerOutput{
		GoalSummary: goal,
		Steps: []models.PlanStep{
			{
				ID:             "step-1",
				Description:    goal,
				AgentResidence: o.trustRoot.String() + "/worker",
				Input:          goal,
			},
		},
	}
}

// terminalKind classifies the run from its step results. Escalation
// takes precedence over accumulated errors; an abort is an error.
func terminalKind(steps []models.StepResult, aborted bool) models.ResultKind {
	anyError := false
	for _, s := range steps {
		if s.Status == models.StepStatusEscalated {
			return models.ResultEscalation
		}
		if s.Status == models.StepStatusError {
			anyError = true
		}
	}
	if aborted {
		return models.ResultError
	}
	if anyError {
		return models.ResultPartial
	}
	return models.ResultOK
}

// firstEscalation returns the first escalation signal among the steps.
func firstEscalation(steps []models.StepResult) *models.EscalationInfo {
	for _, s := range steps {
		if s.Status == models.StepStatusEscalated && s.Escalation != nil {
			return s.Escalation
		}
	}
	return nil
}

// firstError returns the first error message among the steps.
func firstError(steps []models.StepResult) string {
	for _, s := range steps {
		if s.Status == models.StepStatusError && s.Error != "" {
			return s.Error
		}
	}
	return ""
}

// joinOutputs concatenates successful step outputs, skipping the
// bundle-only sentinel.
func joinOutputs(steps []models.StepResult) string {
	var parts []string
	for _, s := range steps {
		if s.Status == models.StepStatusSuccess && s.Output != "" && s.Output != contracts.BundleOnlySentinel {
			parts = append(parts, s.Output)
		}
	}
	return strings.Join(parts, "\n\n")
}
