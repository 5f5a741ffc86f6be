package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)

	started := time.Now()
	if err := db.StartRun("run1", "refactor the parser", started); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	run, err := db.GetRun("run1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil {
		t.Fatal("run not found after StartRun")
	}
	if run.Goal != "refactor the parser" {
		t.Errorf("Goal = %q", run.Goal)
	}
	if run.FinishedAt != nil {
		t.Error("FinishedAt set before FinishRun")
	}

	result := &models.OrchestrationResult{
		Kind:     models.ResultEscalation,
		RunID:    "run1",
		Output:   "",
		Duration: 1500 * time.Millisecond,
		Steps: []models.StepResult{
			{StepID: "s1", AgentResidence: "agents/helper", Status: models.StepStatusSuccess, Output: "done", Duration: 200 * time.Millisecond},
			{
				StepID:         "s2",
				AgentResidence: "agents/specialist/net",
				Status:         models.StepStatusEscalated,
				Escalation: &models.EscalationInfo{
					MissingSkill: "fetch_remote",
					Residence:    "agents/specialist/net",
					Capability:   models.CapabilityNetworkAccess,
				},
			},
		},
	}
	if err := db.FinishRun(result); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err = db.GetRun("run1")
	if err != nil {
		t.Fatalf("GetRun after finish failed: %v", err)
	}
	if run.Kind != models.ResultEscalation {
		t.Errorf("Kind = %s, want escalation", run.Kind)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if run.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", run.Duration)
	}

	steps, err := db.ListStepResults("run1")
	if err != nil {
		t.Fatalf("ListStepResults failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[1].Escalation == nil {
		t.Fatal("escalation not round-tripped")
	}
	if steps[1].Escalation.MissingSkill != "fetch_remote" {
		t.Errorf("MissingSkill = %q", steps[1].Escalation.MissingSkill)
	}
	if steps[1].Escalation.Capability != models.CapabilityNetworkAccess {
		t.Errorf("Capability = %s", steps[1].Escalation.Capability)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	run, err := db.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run != nil {
		t.Errorf("got run %+v, want nil", run)
	}
}

func TestListRuns_NewestFirstAndLimit(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		if err := db.StartRun(id, "goal "+id, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("StartRun(%s) failed: %v", id, err)
		}
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	if runs[0].ID != "new" || runs[2].ID != "old" {
		t.Errorf("order = %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}

	limited, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d runs, want 2", len(limited))
	}
}

func TestEvents(t *testing.T) {
	db := setupTestDB(t)

	if err := db.AppendEvent("run1", "run_started", "", "starting"); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if err := db.AppendEvent("run1", "step_started", "s1", ""); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if err := db.AppendEvent("run2", "run_started", "", ""); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	events, err := db.ListEvents("run1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "run_started" || events[1].Type != "step_started" {
		t.Errorf("order = %s, %s", events[0].Type, events[1].Type)
	}
	if events[1].StepID != "s1" {
		t.Errorf("StepID = %q", events[1].StepID)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	task := &models.TaskState{
		ID:        "task1",
		Status:    models.TaskStatusPending,
		Input:     "do the thing",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	got, err := db.GetTask("task1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("task not found")
	}
	if got.Status != models.TaskStatusPending || got.Input != "do the thing" {
		t.Errorf("got %+v", got)
	}
	if got.Result != nil {
		t.Error("Result should be nil")
	}

	// Upsert to terminal state with a result attached.
	task.Status = models.TaskStatusCompleted
	task.UpdatedAt = now.Add(time.Minute)
	task.Result = &models.OrchestrationResult{Kind: models.ResultOK, RunID: "task1", Output: "all done"}
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask upsert failed: %v", err)
	}

	got, err = db.GetTask("task1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Status = %s", got.Status)
	}
	if got.Result == nil || got.Result.Output != "all done" {
		t.Errorf("Result = %+v", got.Result)
	}
}

func TestListTasks_FilterByStatus(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now()
	for i, tc := range []struct {
		id     string
		status models.TaskStatus
	}{
		{"t1", models.TaskStatusPending},
		{"t2", models.TaskStatusRunning},
		{"t3", models.TaskStatusPending},
	} {
		task := &models.TaskState{
			ID:        tc.id,
			Status:    tc.status,
			Input:     "x",
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			UpdatedAt: now,
		}
		if err := db.SaveTask(task); err != nil {
			t.Fatalf("SaveTask(%s) failed: %v", tc.id, err)
		}
	}

	pending := models.TaskStatusPending
	tasks, err := db.ListTasks(&pending)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d pending tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "t3" {
		t.Errorf("newest first: got %s", tasks[0].ID)
	}

	all, err := db.ListTasks(nil)
	if err != nil {
		t.Fatalf("ListTasks(nil) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d tasks, want 3", len(all))
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)

	if err := db.StartRun("old", "x", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := db.StartRun("fresh", "y", time.Now()); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	count, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if count != 1 {
		t.Errorf("purged %d runs, want 1", count)
	}
	run, _ := db.GetRun("fresh")
	if run == nil {
		t.Error("fresh run was purged")
	}
}
