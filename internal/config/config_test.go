package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
trust:
  root: crew
  skills_dir: /tmp/skills
orchestrator:
  max_parallelism: 3
  total_timeout: 2m
  abort_on_error: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Trust.Root != "crew" {
		t.Errorf("Trust.Root = %q", cfg.Trust.Root)
	}
	if cfg.Orchestrator.MaxParallelism != 3 {
		t.Errorf("MaxParallelism = %d", cfg.Orchestrator.MaxParallelism)
	}
	if cfg.Orchestrator.TotalTimeout != 2*time.Minute {
		t.Errorf("TotalTimeout = %v", cfg.Orchestrator.TotalTimeout)
	}
	if !cfg.Orchestrator.AbortOnError {
		t.Error("AbortOnError = false")
	}
	// Untouched sections keep defaults.
	if cfg.Orchestrator.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default 4096", cfg.Orchestrator.MaxTokens)
	}
	if cfg.State.TrailDir != ".warden/trails" {
		t.Errorf("TrailDir = %q", cfg.State.TrailDir)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("WARDEN_TEST_KEY", "expanded-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${WARDEN_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-secret" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Trust.Root != "agents" {
		t.Errorf("Trust.Root = %q", cfg.Trust.Root)
	}
	if cfg.Orchestrator.MaxParallelism != 5 {
		t.Errorf("MaxParallelism = %d", cfg.Orchestrator.MaxParallelism)
	}
	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("RefreshRate = %v", cfg.TUI.RefreshRate)
	}
}
