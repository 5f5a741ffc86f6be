package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/warden/internal/bundle"
	"github.com/ShayCichocki/warden/internal/llm"
	"github.com/ShayCichocki/warden/internal/plancheck"
	"github.com/ShayCichocki/warden/pkg/models"
)

// fakeResolver serves bundles from an in-memory skill table.
type fakeResolver struct {
	mu      sync.Mutex
	skills  map[string][]models.Skill
	errOn   map[string]models.ErrorCode
	panicOn string
	calls   []string
}

func (f *fakeResolver) InvokeSafe(req bundle.InvokeRequest) bundle.Invocation {
	f.mu.Lock()
	f.calls = append(f.calls, req.ResidencePath)
	f.mu.Unlock()

	if f.panicOn != "" && req.ResidencePath == f.panicOn {
		panic("forced resolver panic")
	}
	if code, ok := f.errOn[req.ResidencePath]; ok {
		return bundle.Invocation{Kind: bundle.KindError, Code: code, Message: "forced failure"}
	}
	residence, err := models.ParseResidence(req.ResidencePath)
	if err != nil {
		return bundle.Invocation{Kind: bundle.KindError, Code: models.ErrInvalidResidence, Message: err.Error()}
	}
	return bundle.Invocation{
		Kind: bundle.KindOK,
		Bundle: &bundle.Bundle{
			Residence: residence,
			Skills:    f.skills[req.ResidencePath],
			Prompt:    req.Task,
		},
	}
}

func (f *fakeResolver) callCount(residence string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == residence {
			n++
		}
	}
	return n
}

// scriptedClient returns canned responses in order.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	maxTokens []int64
}

func (s *scriptedClient) IsConfigured() bool { return true }

func (s *scriptedClient) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req.Task)
	s.maxTokens = append(s.maxTokens, req.MaxTokens)
	if len(s.responses) == 0 {
		return nil, &llm.GenerateError{Message: "script exhausted"}
	}
	text := s.responses[0]
	s.responses = s.responses[1:]
	return &llm.GenerateResponse{Text: text}, nil
}

func newTestOrchestrator(t *testing.T, resolver bundle.Resolver, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(RequiredConfig{
		TrustRoot: models.MustParseResidence("agents"),
		Resolver:  resolver,
	}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func linearPlan(residences ...string) *models.PlannerOutput {
	plan := &models.PlannerOutput{GoalSummary: "test goal"}
	var prev string
	for i, r := range residences {
		step := models.PlanStep{
			ID:             strings.Repeat("s", i+1),
			Description:    "step",
			AgentResidence: r,
			Input:          "do it",
		}
		if prev != "" {
			step.DependsOn = []string{prev}
		}
		prev = step.ID
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

func TestRunBundleOnlyOK(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver)

	plan := linearPlan("agents/helper", "agents/specialist/coder")
	result := o.Run(context.Background(), RunRequest{Input: "do the work", Plan: plan})

	if result.Kind != models.ResultOK {
		t.Fatalf("Kind = %s, want ok (error: %s)", result.Kind, result.Error)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	// supervisor, parser, two plan steps, synthesizer; planner skipped
	// because the plan was supplied.
	if len(result.Steps) != 5 {
		t.Fatalf("got %d step results, want 5", len(result.Steps))
	}
	for _, s := range result.Steps {
		if s.Status != models.StepStatusSuccess {
			t.Errorf("step %s status = %s", s.StepID, s.Status)
		}
	}
	if resolver.callCount("agents/root/planner") != 0 {
		t.Error("planner stage ran despite supplied plan")
	}
	if result.Kind.ExitCode() != 0 {
		t.Errorf("ExitCode = %d", result.Kind.ExitCode())
	}
}

func TestRunEndToEndEscalation(t *testing.T) {
	resolver := &fakeResolver{
		skills: map[string][]models.Skill{
			"agents/specialist/net": {
				{
					ID:                "fetch_remote",
					Description:       "fetch data from a remote host",
					RequiredPrivilege: models.PrivilegeSpecialist,
					Requires:          models.CapabilityNetworkAccess,
					EscalateIfMissing: true,
				},
			},
		},
	}
	o := newTestOrchestrator(t, resolver)

	plan := linearPlan("agents/specialist/net")
	result := o.Run(context.Background(), RunRequest{Input: "fetch the data", Plan: plan})

	if result.Kind != models.ResultEscalation {
		t.Fatalf("Kind = %s, want escalation (error: %s)", result.Kind, result.Error)
	}
	if result.Escalation == nil {
		t.Fatal("Escalation is nil")
	}
	if result.Escalation.MissingSkill != "fetch_remote" {
		t.Errorf("MissingSkill = %q", result.Escalation.MissingSkill)
	}
	if result.Escalation.Capability != models.CapabilityNetworkAccess {
		t.Errorf("Capability = %s", result.Escalation.Capability)
	}
	if result.Escalation.Residence != "agents/specialist/net" {
		t.Errorf("Residence = %q", result.Escalation.Residence)
	}
	if len(result.Escalation.SuggestedAlternatives) == 0 {
		t.Error("no suggested alternatives")
	}
	if result.Kind.ExitCode() != 20 {
		t.Errorf("ExitCode = %d, want 20", result.Kind.ExitCode())
	}
}

func TestRunInsufficientPrivilegeSurfaced(t *testing.T) {
	resolver := &fakeResolver{
		skills: map[string][]models.Skill{
			"agents/helper": {
				{ID: "admin_task", RequiredPrivilege: models.PrivilegeRoot},
			},
		},
	}
	o := newTestOrchestrator(t, resolver)

	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})
	if result.Kind != models.ResultEscalation {
		t.Fatalf("Kind = %s, want escalation", result.Kind)
	}
	if result.Escalation.MissingSkill != "admin_task" {
		t.Errorf("MissingSkill = %q", result.Escalation.MissingSkill)
	}
	if !strings.Contains(result.Escalation.PolicyRef, "privilege") {
		t.Errorf("PolicyRef = %q, want privilege gap", result.Escalation.PolicyRef)
	}
}

func TestRunAbortOnError(t *testing.T) {
	resolver := &fakeResolver{
		errOn: map[string]models.ErrorCode{"agents/broken": models.ErrInternal},
	}
	o := newTestOrchestrator(t, resolver, WithAbortOnError(true))

	plan := linearPlan("agents/broken", "agents/helper")
	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: plan})

	if result.Kind != models.ResultError {
		t.Fatalf("Kind = %s, want error", result.Kind)
	}
	if resolver.callCount("agents/helper") != 0 {
		t.Error("second step ran after abort")
	}
	if result.Kind.ExitCode() != 30 {
		t.Errorf("ExitCode = %d, want 30", result.Kind.ExitCode())
	}
}

func TestRunPartialWithoutAbort(t *testing.T) {
	resolver := &fakeResolver{
		errOn: map[string]models.ErrorCode{"agents/broken": models.ErrInternal},
	}
	o := newTestOrchestrator(t, resolver)

	plan := &models.PlannerOutput{
		GoalSummary: "g",
		Steps: []models.PlanStep{
			{ID: "a", AgentResidence: "agents/broken", Input: "x"},
			{ID: "b", AgentResidence: "agents/helper", Input: "y"},
		},
	}
	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: plan})

	if result.Kind != models.ResultPartial {
		t.Fatalf("Kind = %s, want partial", result.Kind)
	}
	if resolver.callCount("agents/helper") != 1 {
		t.Error("second step did not run")
	}
	if result.Kind.ExitCode() != 10 {
		t.Errorf("ExitCode = %d, want 10", result.Kind.ExitCode())
	}
}

func TestRunInvalidPlanRejected(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver)

	plan := &models.PlannerOutput{
		GoalSummary: "g",
		Steps: []models.PlanStep{
			{ID: "a", AgentResidence: "agents/x", DependsOn: []string{"b"}},
			{ID: "b", AgentResidence: "agents/y", DependsOn: []string{"a"}},
		},
	}
	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: plan})

	if result.Kind != models.ResultError {
		t.Fatalf("Kind = %s, want error", result.Kind)
	}
	if !strings.Contains(result.Error, string(models.ErrInvalidPlan)) {
		t.Errorf("Error = %q, want INVALID_PLAN", result.Error)
	}
	if !strings.Contains(result.Error, "circular_dependency") {
		t.Errorf("Error = %q, want circular_dependency", result.Error)
	}
	if resolver.callCount("agents/x") != 0 {
		t.Error("plan step ran despite invalid plan")
	}
}

func TestRunParallelSteps(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver, WithConstraints(plancheck.DefaultConstraints()))

	plan := &models.PlannerOutput{
		GoalSummary: "g",
		Steps: []models.PlanStep{
			{ID: "a", AgentResidence: "agents/w1", Input: "x", Parallel: true},
			{ID: "b", AgentResidence: "agents/w2", Input: "x", Parallel: true},
			{ID: "c", AgentResidence: "agents/w3", Input: "x", Parallel: true},
			{ID: "d", AgentResidence: "agents/final", Input: "x", DependsOn: []string{"a", "b", "c"}},
		},
	}
	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: plan})

	if result.Kind != models.ResultOK {
		t.Fatalf("Kind = %s, want ok (error: %s)", result.Kind, result.Error)
	}
	// d must run after all of a, b, c.
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	finalIdx := -1
	for i, c := range resolver.calls {
		if c == "agents/final" {
			finalIdx = i
		}
	}
	if finalIdx == -1 {
		t.Fatal("dependent step never ran")
	}
	for _, w := range []string{"agents/w1", "agents/w2", "agents/w3"} {
		seen := false
		for i, c := range resolver.calls {
			if c == w && i < finalIdx {
				seen = true
			}
		}
		if !seen {
			t.Errorf("step at %s did not complete before dependent step", w)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := o.Run(ctx, RunRequest{Input: "x", Plan: linearPlan("agents/helper")})

	if result.Kind != models.ResultCancelled {
		t.Fatalf("Kind = %s, want cancelled", result.Kind)
	}
	if result.Kind.ExitCode() != 40 {
		t.Errorf("ExitCode = %d, want 40", result.Kind.ExitCode())
	}
}

func TestRunTotalTimeout(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver, WithTotalTimeout(time.Nanosecond))

	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})
	if result.Kind != models.ResultError {
		t.Fatalf("Kind = %s, want error", result.Kind)
	}
	if !strings.Contains(result.Error, "total timeout") {
		t.Errorf("Error = %q, want total timeout", result.Error)
	}
}

func TestRunCompletedExactlyOnce(t *testing.T) {
	cases := []struct {
		name     string
		resolver *fakeResolver
		wantKind models.ResultKind
	}{
		{"success", &fakeResolver{}, models.ResultOK},
		{"mid-pipeline panic", &fakeResolver{panicOn: "agents/root/supervisor"}, models.ResultError},
		{"step escalation", &fakeResolver{skills: map[string][]models.Skill{
			"agents/helper": {{ID: "s", Requires: models.CapabilityNetworkAccess, EscalateIfMissing: true}},
		}}, models.ResultEscalation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var mu sync.Mutex
			completed := 0
			o, err := New(RequiredConfig{
				TrustRoot: models.MustParseResidence("agents"),
				Resolver:  tc.resolver,
			}, WithEventHandler(func(ev Event) {
				if ev.Type == EventRunCompleted {
					mu.Lock()
					completed++
					mu.Unlock()
				}
			}))
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})
			o.Close()

			if result.Kind != tc.wantKind {
				t.Errorf("Kind = %s, want %s (error: %s)", result.Kind, tc.wantKind, result.Error)
			}
			mu.Lock()
			defer mu.Unlock()
			if completed != 1 {
				t.Errorf("run_completed fired %d times, want exactly 1", completed)
			}
		})
	}
}

func TestRunEventSequence(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	resolver := &fakeResolver{}
	o, err := New(RequiredConfig{
		TrustRoot: models.MustParseResidence("agents"),
		Resolver:  resolver,
	}, WithEventHandler(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})
	o.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Type != EventRunStarted {
		t.Errorf("first event = %s, want run_started", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != EventRunCompleted {
		t.Errorf("last event = %s, want run_completed", last.Type)
	}
	if last.Kind != result.Kind {
		t.Errorf("run_completed kind = %s, want %s", last.Kind, result.Kind)
	}
	started, done := 0, 0
	for _, ev := range events {
		switch ev.Type {
		case EventStepStarted:
			started++
		case EventStepCompleted:
			done++
		}
	}
	if started != done {
		t.Errorf("step_started = %d, step_completed = %d", started, done)
	}
	if started == 0 {
		t.Error("no step events observed")
	}
}

func TestRunPanickingEventHandler(t *testing.T) {
	resolver := &fakeResolver{}
	o, err := New(RequiredConfig{
		TrustRoot: models.MustParseResidence("agents"),
		Resolver:  resolver,
	}, WithEventHandler(func(ev Event) {
		panic("handler blew up")
	}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})
	o.Close()

	if result.Kind != models.ResultOK {
		t.Errorf("Kind = %s, want ok despite handler panics", result.Kind)
	}
}

func TestRunRegistryIntegration(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver)

	result := o.Run(context.Background(), RunRequest{Input: "remember me", Plan: linearPlan("agents/helper")})

	task, err := o.Registry().Get(result.RunID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("task status = %s, want completed", task.Status)
	}
	if task.Input != "remember me" {
		t.Errorf("Input = %q", task.Input)
	}
	if task.Result == nil || task.Result.Kind != models.ResultOK {
		t.Errorf("Result = %+v", task.Result)
	}
}

func TestRunContractRetryThenSuccess(t *testing.T) {
	resolver := &fakeResolver{}
	client := &scriptedClient{responses: []string{
		"this is not json",            // supervisor, rejected
		`{"route":"pipeline"}`,        // supervisor retry, accepted
		`{"goal":"refined goal"}`,     // parser
		"step output",                 // plan step
		"final synthesized answer",    // synthesizer
	}}
	o := newTestOrchestrator(t, resolver, WithLLMClient(client))

	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})

	if result.Kind != models.ResultOK {
		t.Fatalf("Kind = %s, want ok (error: %s)", result.Kind, result.Error)
	}
	if result.Output != "final synthesized answer" {
		t.Errorf("Output = %q", result.Output)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.prompts) != 5 {
		t.Fatalf("got %d LLM calls, want 5", len(client.prompts))
	}
	if !strings.Contains(client.prompts[1], "rejected") {
		t.Error("retry prompt carries no feedback")
	}
}

func TestRunForwardsMaxTokens(t *testing.T) {
	resolver := &fakeResolver{}
	client := &scriptedClient{responses: []string{
		`{"route":"pipeline"}`,     // supervisor
		`{"goal":"refined goal"}`,  // parser
		"step output",              // plan step
		"final synthesized answer", // synthesizer
	}}
	o := newTestOrchestrator(t, resolver, WithLLMClient(client), WithMaxTokens(8192))

	result := o.Run(context.Background(), RunRequest{Input: "x", Plan: linearPlan("agents/helper")})
	if result.Kind != models.ResultOK {
		t.Fatalf("Kind = %s, want ok (error: %s)", result.Kind, result.Error)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.maxTokens) == 0 {
		t.Fatal("no LLM calls recorded")
	}
	for i, n := range client.maxTokens {
		if n != 8192 {
			t.Errorf("call %d MaxTokens = %d, want 8192", i, n)
		}
	}
}

func TestRunPlannerContractTerminal(t *testing.T) {
	resolver := &fakeResolver{}
	client := &scriptedClient{responses: []string{
		`{"route":"pipeline"}`, // supervisor
		`{"goal":"g"}`,         // parser
		"garbage",              // planner, rejected -> retry
		"more garbage",         // planner retry, rejected -> escalate_verifier
	}}
	o := newTestOrchestrator(t, resolver, WithLLMClient(client))

	result := o.Run(context.Background(), RunRequest{Input: "x"})

	if result.Kind != models.ResultError {
		t.Fatalf("Kind = %s, want error", result.Kind)
	}
	if !strings.Contains(result.Error, string(models.ErrContractViolation)) {
		t.Errorf("Error = %q, want CONTRACT_VIOLATION", result.Error)
	}
	if !strings.Contains(result.Error, "planner") {
		t.Errorf("Error = %q, want planner named", result.Error)
	}
}

func TestRunDefaultPlanWithoutLLM(t *testing.T) {
	resolver := &fakeResolver{}
	o := newTestOrchestrator(t, resolver)

	result := o.Run(context.Background(), RunRequest{Input: "summarize the repo"})
	if result.Kind != models.ResultOK {
		t.Fatalf("Kind = %s, want ok (error: %s)", result.Kind, result.Error)
	}
	if resolver.callCount("agents/worker") != 1 {
		t.Error("default plan step did not run at agents/worker")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(RequiredConfig{Resolver: &fakeResolver{}}); err == nil {
		t.Error("expected error for zero trust root")
	}
	if _, err := New(RequiredConfig{TrustRoot: models.MustParseResidence("agents")}); err == nil {
		t.Error("expected error for nil resolver")
	}
}
