// Package plancheck validates planner-produced DAGs before any step
// executes. It defends against a compromised or buggy planner causing
// resource exhaustion or privilege escalation. The validator is an
// advisory gate: it returns typed results and never raises errors.
package plancheck

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Reason classifies why a plan was rejected.
type Reason string

const (
	// ReasonTooManySteps means the plan exceeds the step budget.
	ReasonTooManySteps Reason = "too_many_steps"
	// ReasonTooMuchParallelism means a schedulable batch declares more
	// parallel steps than allowed.
	ReasonTooMuchParallelism Reason = "too_much_parallelism"
	// ReasonCircularDependency means the dependency graph has a cycle.
	ReasonCircularDependency Reason = "circular_dependency"
	// ReasonMissingDependency means a step depends on an unknown step.
	ReasonMissingDependency Reason = "missing_dependency"
	// ReasonInvalidResidence means a step's residence failed validation.
	ReasonInvalidResidence Reason = "invalid_residence"
	// ReasonUnauthorizedCapability means a step's derived privilege
	// implies a dangerous capability outside the allowed set.
	ReasonUnauthorizedCapability Reason = "unauthorized_capability"
	// ReasonUnauthorizedEscalation means the plan carries escalation
	// requests the active constraints disallow.
	ReasonUnauthorizedEscalation Reason = "unauthorized_escalation"
)

// Result is the validator's verdict on a plan.
type Result struct {
	// Valid is true when every check passed.
	Valid bool
	// Reason classifies the first failed check.
	Reason Reason
	// Details is the human-readable diagnostic for the failure.
	Details string
	// StepID names the offending step, when one is identifiable.
	StepID string
	// Cycle lists every step in the offending cycle, in walk order,
	// for circular_dependency failures.
	Cycle []string
}

// ok is the passing verdict.
func ok() Result { return Result{Valid: true} }

func fail(reason Reason, stepID, format string, args ...interface{}) Result {
	return Result{
		Valid:   false,
		Reason:  reason,
		StepID:  stepID,
		Details: fmt.Sprintf(format, args...),
	}
}

// Constraints bound what a plan may ask for. They are derived from the
// privilege of the residence that requested the run.
type Constraints struct {
	// MaxSteps caps the total step count.
	MaxSteps int
	// MaxParallelism caps declared-parallel steps per schedulable batch.
	MaxParallelism int
	// AllowedCapabilities is the capability set the run may exercise.
	AllowedCapabilities []models.Capability
	// AllowEscalationRequests permits planner-proposed capability asks.
	AllowEscalationRequests bool
}

// allows returns true if the capability is in the allowed set.
func (c Constraints) allows(cap models.Capability) bool {
	for _, allowed := range c.AllowedCapabilities {
		if allowed == cap {
			return true
		}
	}
	return false
}

// ConstraintsFromPrivilege derives run constraints from a privilege.
// User is most restrictive; root most permissive.
func ConstraintsFromPrivilege(p models.Privilege) Constraints {
	switch p {
	case models.PrivilegeRoot:
		return Constraints{
			MaxSteps:                50,
			MaxParallelism:          10,
			AllowedCapabilities:     models.PrivilegeRoot.Capabilities(),
			AllowEscalationRequests: true,
		}
	case models.PrivilegeSpecialist:
		return Constraints{
			MaxSteps:                20,
			MaxParallelism:          5,
			AllowedCapabilities:     models.PrivilegeSpecialist.Capabilities(),
			AllowEscalationRequests: false,
		}
	default:
		return Constraints{
			MaxSteps:                5,
			MaxParallelism:          2,
			AllowedCapabilities:     models.PrivilegeUser.Capabilities(),
			AllowEscalationRequests: false,
		}
	}
}

// DefaultConstraints returns the specialist-level defaults used when no
// requesting privilege is known.
func DefaultConstraints() Constraints {
	return ConstraintsFromPrivilege(models.PrivilegeSpecialist)
}

// Validator validates plans against constraints and the trust root.
type Validator struct {
	trustRoot models.Residence
}

// New creates a Validator. trustRoot may be the zero residence, in
// which case every parsed residence is considered in scope.
func New(trustRoot models.Residence) *Validator {
	return &Validator{trustRoot: trustRoot}
}

// Validate runs every check in order, short-circuiting on the first
// failure: step budget, declared parallelism, cycles, missing
// dependencies, residence validity and capability authorization, and
// escalation requests.
func (v *Validator) Validate(plan *models.PlannerOutput, constraints Constraints) Result {
	if plan == nil {
		return fail(ReasonMissingDependency, "", "plan is nil")
	}

	if len(plan.Steps) > constraints.MaxSteps {
		return fail(ReasonTooManySteps, "",
			"plan has %d steps, maximum is %d", len(plan.Steps), constraints.MaxSteps)
	}

	if result := v.checkParallelism(plan, constraints); !result.Valid {
		return result
	}
	if result := v.checkCycles(plan); !result.Valid {
		return result
	}
	if result := v.checkDependencies(plan); !result.Valid {
		return result
	}
	if result := v.checkResidences(plan, constraints); !result.Valid {
		return result
	}

	if len(plan.EscalationRequests) > 0 && !constraints.AllowEscalationRequests {
		return fail(ReasonUnauthorizedEscalation, "",
			"plan carries %d escalation requests but the active constraints disallow them",
			len(plan.EscalationRequests))
	}

	return ok()
}

// checkParallelism groups steps by their sorted dependency set: steps
// sharing identical prerequisites form one schedulable batch. Only
// steps explicitly marked parallel count against the cap; unmarked
// steps are bounded at runtime by the shared concurrency limiter.
func (v *Validator) checkParallelism(plan *models.PlannerOutput, constraints Constraints) Result {
	groups := make(map[string]int)
	for _, step := range plan.Steps {
		if !step.Parallel {
			continue
		}
		deps := append([]string(nil), step.DependsOn...)
		sort.Strings(deps)
		key := strings.Join(deps, ",")
		groups[key]++
		if groups[key] > constraints.MaxParallelism {
			return fail(ReasonTooMuchParallelism, step.ID,
				"batch with dependencies [%s] declares %d parallel steps, maximum is %d",
				key, groups[key], constraints.MaxParallelism)
		}
	}
	return ok()
}

// checkCycles runs a DFS with white/gray/black coloring over the
// dependency graph restricted to IDs present in the plan. Revisiting a
// gray node yields the full cycle path for diagnostics.
func (v *Validator) checkCycles(plan *models.PlannerOutput) Result {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	known := make(map[string]bool, len(plan.Steps))
	deps := make(map[string][]string, len(plan.Steps))
	for _, step := range plan.Steps {
		known[step.ID] = true
	}
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if known[dep] {
				deps[step.ID] = append(deps[step.ID], dep)
			}
		}
	}

	colors := make(map[string]int, len(plan.Steps))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		stack = append(stack, id)

		for _, dep := range deps[id] {
			switch colors[dep] {
			case gray:
				// Back edge: slice the walk from the first occurrence
				// of dep to recover the whole cycle.
				for i, node := range stack {
					if node == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						return true
					}
				}
				cycle = []string{dep, id, dep}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		colors[id] = black
		stack = stack[:len(stack)-1]
		return false
	}

	for _, step := range plan.Steps {
		if colors[step.ID] == white {
			stack = stack[:0]
			if visit(step.ID) {
				return Result{
					Valid:   false,
					Reason:  ReasonCircularDependency,
					Details: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
					Cycle:   cycle,
				}
			}
		}
	}
	return ok()
}

// checkDependencies verifies every dependsOn ID exists in the plan.
func (v *Validator) checkDependencies(plan *models.PlannerOutput) Result {
	known := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		known[step.ID] = true
	}
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if !known[dep] {
				return fail(ReasonMissingDependency, step.ID,
					"step %s depends on unknown step %s", step.ID, dep)
			}
		}
	}
	return ok()
}

// dangerousCapabilities are the only capabilities powerful enough to
// reject a plan outright when outside the allowed set. Less dangerous
// capabilities are tolerated deliberately: the runtime escalation check
// still gates them per step.
var dangerousCapabilities = []models.Capability{
	models.CapabilityEscalate,
	models.CapabilityNetworkAccess,
}

// checkResidences validates each step's residence and rejects steps
// whose derived privilege implies a dangerous, unauthorized capability.
func (v *Validator) checkResidences(plan *models.PlannerOutput, constraints Constraints) Result {
	for _, step := range plan.Steps {
		residence, err := models.ParseResidence(step.AgentResidence)
		if err != nil {
			return fail(ReasonInvalidResidence, step.ID,
				"step %s residence %q: %v", step.ID, step.AgentResidence, err)
		}
		if !residence.Under(v.trustRoot) {
			return fail(ReasonInvalidResidence, step.ID,
				"step %s residence %q lies outside the trust root %q",
				step.ID, step.AgentResidence, v.trustRoot.String())
		}

		for _, implied := range residence.Privilege().Capabilities() {
			for _, dangerous := range dangerousCapabilities {
				if implied == dangerous && !constraints.allows(implied) {
					return fail(ReasonUnauthorizedCapability, step.ID,
						"step %s at %s implies capability %s which the active constraints do not allow",
						step.ID, step.AgentResidence, implied)
				}
			}
		}
	}
	return ok()
}
