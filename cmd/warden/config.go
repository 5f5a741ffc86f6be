package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the configuration warden would use, after merging defaults,
the user config file, the project .warden.yaml, and environment
variables.

User config lives at ~/.config/warden/config.yaml (or under
$XDG_CONFIG_HOME). A project-level .warden.yaml overrides it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		displayConfig(cfg)
		return nil
	},
}

func displayConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}
	modelDisplay := cfg.Anthropic.Model
	if modelDisplay == "" {
		modelDisplay = "(default)"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", modelDisplay)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("trust.root: %s\n", cfg.Trust.Root)
	fmt.Printf("trust.skills_dir: %s\n", cfg.Trust.SkillsDir)
	fmt.Printf("orchestrator.max_parallelism: %d\n", cfg.Orchestrator.MaxParallelism)
	fmt.Printf("orchestrator.queue_timeout: %s\n", cfg.Orchestrator.QueueTimeout)
	fmt.Printf("orchestrator.total_timeout: %s\n", cfg.Orchestrator.TotalTimeout)
	fmt.Printf("orchestrator.abort_on_error: %t\n", cfg.Orchestrator.AbortOnError)
	fmt.Printf("orchestrator.max_tokens: %d\n", cfg.Orchestrator.MaxTokens)
	dbPath := cfg.State.DBPath
	if dbPath == "" {
		dbPath = "(project-local .warden/state.db)"
	}
	fmt.Printf("state.db_path: %s\n", dbPath)
	fmt.Printf("state.trail_dir: %s\n", cfg.State.TrailDir)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}
