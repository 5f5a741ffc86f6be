// Package bundle resolves the execution bundle for an agent residence:
// its inherited skills, assembled prompt text, and paper-trail files.
// Resolution never returns a Go error; every failure is a tagged
// invocation result the orchestrator can normalize.
package bundle

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Kind tags an invocation outcome.
type Kind string

const (
	// KindOK means the bundle resolved successfully.
	KindOK Kind = "ok"
	// KindEscalation means resolution was stopped by a policy gate.
	KindEscalation Kind = "escalation"
	// KindError means resolution failed.
	KindError Kind = "error"
)

// Bundle is the resolved package handed to a step for execution.
type Bundle struct {
	// Residence is the validated residence the bundle was built for.
	Residence models.Residence
	// Skills is the inherited skill list, lexicographic by ID.
	Skills []models.Skill
	// Prompt is the assembled prompt text for the agent.
	Prompt string
	// PaperTrail lists files recording the prompt and skill provenance.
	PaperTrail []string
}

// Invocation is the tagged result of InvokeSafe.
type Invocation struct {
	// Kind tags the outcome.
	Kind Kind
	// Bundle is set for KindOK.
	Bundle *Bundle
	// Escalation is set for KindEscalation.
	Escalation *models.EscalationInfo
	// Code classifies the failure for KindError.
	Code models.ErrorCode
	// Message describes the failure for KindError.
	Message string
	// Details carries optional structured failure context.
	Details map[string]string
}

// InvokeRequest identifies one bundle resolution.
type InvokeRequest struct {
	// RunID is the orchestration run, used for paper-trail paths.
	RunID string
	// StepID is the step the bundle serves.
	StepID string
	// ResidencePath is the unvalidated residence path from the plan.
	ResidencePath string
	// Task is the step input included in the prompt.
	Task string
}

// SkillLoader resolves the inherited skill index for a residence.
type SkillLoader interface {
	LoadInherited(residence models.Residence) (*models.SkillsIndex, error)
}

// Resolver builds execution bundles. Implementations never panic and
// never return Go errors from InvokeSafe.
type Resolver interface {
	InvokeSafe(req InvokeRequest) Invocation
}

// FSResolver resolves bundles from skill declaration files on disk and
// writes paper trails under trailDir. Escalation decisions are not made
// here; the orchestrator validates the returned skills against the
// privilege model before running the step.
type FSResolver struct {
	loader   SkillLoader
	trailDir string
}

// NewFSResolver creates a resolver. trailDir may be empty to disable
// paper-trail persistence.
func NewFSResolver(loader SkillLoader, trailDir string) *FSResolver {
	return &FSResolver{loader: loader, trailDir: trailDir}
}

// InvokeSafe resolves the bundle for a residence. All failures come
// back as tagged results; the method never returns a Go error.
func (r *FSResolver) InvokeSafe(req InvokeRequest) Invocation {
	residence, err := models.ParseResidence(req.ResidencePath)
	if err != nil {
		code := models.ErrInvalidResidence
		if strings.Contains(req.ResidencePath, "..") {
			code = models.ErrPathTraversal
		}
		return Invocation{
			Kind:    KindError,
			Code:    code,
			Message: err.Error(),
			Details: map[string]string{"residence": req.ResidencePath},
		}
	}

	index, err := r.loader.LoadInherited(residence)
	if err != nil {
		code := models.ErrInternal
		var coded *models.CodedError
		if errors.As(err, &coded) {
			code = coded.Code
		}
		return Invocation{
			Kind:    KindError,
			Code:    code,
			Message: fmt.Sprintf("load skills for %s: %v", residence, err),
			Details: map[string]string{"residence": residence.String()},
		}
	}

	skills := index.Skills()
	prompt := assemblePrompt(residence, skills, req.Task)
	trail := r.writeTrail(req, residence, skills, prompt)

	return Invocation{
		Kind: KindOK,
		Bundle: &Bundle{
			Residence:  residence,
			Skills:     skills,
			Prompt:     prompt,
			PaperTrail: trail,
		},
	}
}

// assemblePrompt renders the agent prompt: identity, skill inventory,
// then the task.
func assemblePrompt(residence models.Residence, skills []models.Skill, task string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an agent residing at %s (privilege: %s).\n\n", residence, residence.Privilege())

	if len(skills) > 0 {
		b.WriteString("Available skills:\n")
		for _, s := range skills {
			if s.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", s.ID, s.Description)
			} else {
				fmt.Fprintf(&b, "- %s\n", s.ID)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Task:\n")
	b.WriteString(task)
	return b.String()
}

// writeTrail persists the prompt and skill provenance for audit.
// Persistence is best-effort: failures are logged, never fatal.
func (r *FSResolver) writeTrail(req InvokeRequest, residence models.Residence, skills []models.Skill, prompt string) []string {
	if r.trailDir == "" || req.RunID == "" {
		return nil
	}

	dir := filepath.Join(r.trailDir, req.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("[bundle] create trail dir %s: %v", dir, err)
		return nil
	}

	name := req.StepID
	if name == "" {
		name = "stage"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.md", sanitizeName(name)))

	var b strings.Builder
	fmt.Fprintf(&b, "# Step %s\n\n", req.StepID)
	fmt.Fprintf(&b, "- residence: %s\n", residence)
	fmt.Fprintf(&b, "- privilege: %s\n", residence.Privilege())
	fmt.Fprintf(&b, "- resolved_at: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("## Skills\n\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "- %s (privilege=%s, declared at %s)\n", s.ID, s.RequiredPrivilege, s.ResidencePath)
	}
	b.WriteString("\n## Prompt\n\n")
	b.WriteString(prompt)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		log.Printf("[bundle] write trail %s: %v", path, err)
		return nil
	}
	return []string{path}
}

// sanitizeName makes a step ID safe to use as a file name.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}
