// Package tui provides the terminal run viewer for warden.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/warden/internal/orchestrator"
	"github.com/ShayCichocki/warden/pkg/models"
)

// EventMsg wraps an orchestration event for the TUI.
type EventMsg orchestrator.Event

// DoneMsg signals that the run has reached its terminal result.
type DoneMsg struct {
	Result *models.OrchestrationResult
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#45B7D1"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#96E6A1"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	escalateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC857")).Bold(true)
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#45B7D1"))
	residenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

// stepLine is one row in the step list.
type stepLine struct {
	id        string
	residence string
	status    models.StepStatus
	running   bool
	message   string
}

// RunView is the bubbletea model showing one orchestration run live.
type RunView struct {
	spinner  spinner.Model
	goal     string
	runID    string
	steps    []stepLine
	result   *models.OrchestrationResult
	width    int
	quitting bool
}

// NewRunView creates a run viewer for the given goal.
func NewRunView(goal string) *RunView {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle
	return &RunView{
		spinner: s,
		goal:    goal,
		width:   80,
	}
}

// Init starts the spinner.
func (v *RunView) Init() tea.Cmd {
	return v.spinner.Tick
}

// Update handles messages.
func (v *RunView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			v.quitting = true
			return v, tea.Quit
		}
		return v, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case EventMsg:
		v.apply(orchestrator.Event(msg))
		return v, nil

	case DoneMsg:
		v.result = msg.Result
		return v, tea.Quit
	}

	return v, nil
}

// apply folds one orchestration event into the step list.
func (v *RunView) apply(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventRunStarted:
		v.runID = ev.RunID

	case orchestrator.EventStepStarted:
		v.steps = append(v.steps, stepLine{
			id:        ev.StepID,
			residence: ev.Residence,
			running:   true,
		})

	case orchestrator.EventStepCompleted:
		for i := len(v.steps) - 1; i >= 0; i-- {
			if v.steps[i].id == ev.StepID && v.steps[i].running {
				v.steps[i].running = false
				v.steps[i].status = ev.Status
				v.steps[i].message = ev.Message
				break
			}
		}

	case orchestrator.EventEscalation:
		if ev.Escalation != nil {
			for i := len(v.steps) - 1; i >= 0; i-- {
				if v.steps[i].id == ev.StepID {
					v.steps[i].message = fmt.Sprintf("needs %s", ev.Escalation.Capability)
					break
				}
			}
		}
	}
}

// View renders the run state.
func (v *RunView) View() string {
	var b strings.Builder

	header := titleStyle.Render("warden run")
	if v.runID != "" {
		header += dimStyle.Render("  " + v.runID)
	}
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(truncate(v.goal, v.width-2)))
	b.WriteString("\n\n")

	for _, s := range v.steps {
		b.WriteString("  ")
		b.WriteString(v.glyph(s))
		b.WriteString(" ")
		b.WriteString(s.id)
		if s.residence != "" {
			b.WriteString(" ")
			b.WriteString(residenceStyle.Render("@" + s.residence))
		}
		if s.message != "" {
			b.WriteString(dimStyle.Render("  " + truncate(s.message, 60)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case v.result != nil:
		b.WriteString(v.renderResult())
	case v.quitting:
		b.WriteString(dimStyle.Render("cancelled by user"))
	default:
		b.WriteString(v.spinner.View())
		b.WriteString(dimStyle.Render(" running..."))
	}
	b.WriteString("\n")

	return b.String()
}

func (v *RunView) glyph(s stepLine) string {
	if s.running {
		return v.spinner.View()
	}
	switch s.status {
	case models.StepStatusSuccess:
		return successStyle.Render("✓")
	case models.StepStatusError:
		return errorStyle.Render("✗")
	case models.StepStatusEscalated:
		return escalateStyle.Render("⇧")
	case models.StepStatusSkipped:
		return dimStyle.Render("-")
	default:
		return " "
	}
}

func (v *RunView) renderResult() string {
	r := v.result
	label := fmt.Sprintf("run %s: %s", r.RunID, r.Kind)
	switch r.Kind {
	case models.ResultOK:
		return successStyle.Render(label)
	case models.ResultEscalation:
		line := escalateStyle.Render(label)
		if r.Escalation != nil {
			line += "\n" + dimStyle.Render(fmt.Sprintf("  missing skill %s at %s (%s)",
				r.Escalation.MissingSkill, r.Escalation.Residence, r.Escalation.PolicyRef))
			for _, alt := range r.Escalation.SuggestedAlternatives {
				line += "\n" + dimStyle.Render("  • "+alt)
			}
		}
		return line
	case models.ResultPartial:
		return escalateStyle.Render(label)
	default:
		line := errorStyle.Render(label)
		if r.Error != "" {
			line += "\n" + dimStyle.Render("  "+truncate(r.Error, 100))
		}
		return line
	}
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
