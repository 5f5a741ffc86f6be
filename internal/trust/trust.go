// Package trust implements the path-derived privilege model and the
// skill-execution checks that gate every orchestrated step.
package trust

import (
	"github.com/ShayCichocki/warden/pkg/models"
)

// ClassifyResidence derives a privilege for any residence string.
// It is total: paths that fail residence validation classify as user,
// the least privilege.
func ClassifyResidence(path string) models.Privilege {
	r, err := models.ParseResidence(path)
	if err != nil {
		return models.PrivilegeUser
	}
	return r.Privilege()
}

// DenialReason classifies why a skill execution was rejected.
type DenialReason string

const (
	// DenialInsufficientPrivilege means the residence's trust level is too low.
	DenialInsufficientPrivilege DenialReason = "insufficient_privilege"
	// DenialMissingCapability means a required capability is not granted.
	DenialMissingCapability DenialReason = "missing_capability"
)

// ExecutionCheck is the verdict of validating one skill against a privilege.
type ExecutionCheck struct {
	// Allowed is true when the skill may execute at the given privilege.
	Allowed bool
	// Reason is set when Allowed is false.
	Reason DenialReason
	// Required is the privilege the skill demands, for insufficient_privilege.
	Required models.Privilege
	// Current is the privilege that was checked, for insufficient_privilege.
	Current models.Privilege
	// Capability is the missing capability, for missing_capability.
	Capability models.Capability
	// Escalate is true when the skill declared escalateIfMissing and the
	// gap is a missing capability.
	Escalate bool
}

// ValidateSkillExecution checks whether a skill may run at the given
// privilege. The privilege gate is structural and checked strictly
// before capabilities: a skill demanding higher privilege is rejected
// before any capability lookup, and no capability grant can bypass it.
func ValidateSkillExecution(skill models.Skill, current models.Privilege) ExecutionCheck {
	if !current.AtLeast(skill.RequiredPrivilege) {
		return ExecutionCheck{
			Allowed:  false,
			Reason:   DenialInsufficientPrivilege,
			Required: skill.RequiredPrivilege,
			Current:  current,
		}
	}

	if skill.Requires != "" && !current.HasCapability(skill.Requires) {
		return ExecutionCheck{
			Allowed:    false,
			Reason:     DenialMissingCapability,
			Capability: skill.Requires,
			Escalate:   skill.EscalateIfMissing,
		}
	}

	return ExecutionCheck{Allowed: true}
}

// SkillCheckDetail pairs a skill with its execution verdict.
type SkillCheckDetail struct {
	// Skill is the skill that was checked.
	Skill models.Skill
	// Check is the verdict.
	Check ExecutionCheck
}

// IndexReport aggregates validation of every skill in an index.
type IndexReport struct {
	// TotalSkills is the number of skills examined.
	TotalSkills int
	// Allowed counts skills that may execute.
	Allowed int
	// Blocked counts non-recoverable denials: insufficient privilege, or
	// a missing capability without escalateIfMissing.
	Blocked int
	// EscalationRequired counts missing_capability denials that declared
	// escalateIfMissing. Only these are recoverable via escalation.
	EscalationRequired int
	// Details lists the verdict for every skill, ordered by skill ID.
	Details []SkillCheckDetail
}

// ValidateSkillsIndex validates every skill in the index against the
// given privilege and returns the aggregate report.
func ValidateSkillsIndex(index *models.SkillsIndex, privilege models.Privilege) IndexReport {
	report := IndexReport{}
	if index == nil {
		return report
	}

	for _, skill := range index.Skills() {
		check := ValidateSkillExecution(skill, privilege)
		report.TotalSkills++
		switch {
		case check.Allowed:
			report.Allowed++
		case check.Reason == DenialMissingCapability && check.Escalate:
			report.EscalationRequired++
		default:
			report.Blocked++
		}
		report.Details = append(report.Details, SkillCheckDetail{Skill: skill, Check: check})
	}

	return report
}
