package models

import "testing"

func TestResultKindExitCodes(t *testing.T) {
	tests := []struct {
		kind ResultKind
		want int
	}{
		{ResultOK, 0},
		{ResultPartial, 10},
		{ResultEscalation, 20},
		{ResultError, 30},
		{ResultCancelled, 40},
		{ResultKind("unknown"), 30},
	}
	for _, tt := range tests {
		if got := tt.kind.ExitCode(); got != tt.want {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSkillsIndexOrderingAndOverride(t *testing.T) {
	idx := NewSkillsIndex(MustParseResidence("agents/specialist/coder"))
	idx.Put(Skill{ID: "zeta", ResidencePath: "agents"})
	idx.Put(Skill{ID: "alpha", ResidencePath: "agents"})
	// Child declaration overrides the ancestor's.
	idx.Put(Skill{ID: "zeta", ResidencePath: "agents/specialist/coder", Description: "leaf"})

	skills := idx.Skills()
	if len(skills) != 2 {
		t.Fatalf("index should contain 2 skills, got %d", len(skills))
	}
	if skills[0].ID != "alpha" || skills[1].ID != "zeta" {
		t.Errorf("skills should be ordered lexicographically, got %s, %s", skills[0].ID, skills[1].ID)
	}
	if skills[1].Description != "leaf" {
		t.Errorf("leaf declaration should win the override, got %q", skills[1].Description)
	}
}
