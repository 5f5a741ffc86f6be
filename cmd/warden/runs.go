package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/pkg/models"
)

var (
	runsListLimit     int
	runsPurgeOlderThan time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past orchestration runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its steps and event log",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished runs older than a cutoff",
	RunE:  runRunsPurge,
}

func init() {
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 20, "Maximum number of runs to list")
	runsPurgeCmd.Flags().DurationVar(&runsPurgeOlderThan, "older-than", 30*24*time.Hour, "Delete runs that started earlier than this")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsPurgeCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStateDB(cfg)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	runs, err := db.ListRuns(runsListLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %s  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			kindLabel(run.Kind),
			truncateText(run.Goal, 60))
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStateDB(cfg)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	run, err := db.GetRun(args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Goal:     %s\n", run.Goal)
	fmt.Printf("Kind:     %s\n", kindLabel(run.Kind))
	fmt.Printf("Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("Finished: %s (%s)\n", run.FinishedAt.Local().Format(time.RFC3339), run.Duration.Round(time.Millisecond))
	}
	if run.Error != "" {
		fmt.Printf("Error:    %s\n", run.Error)
	}

	steps, err := db.ListStepResults(run.ID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	if len(steps) > 0 {
		fmt.Println("\nSteps:")
		for _, step := range steps {
			fmt.Printf("  %-12s %-10s %s\n", step.StepID, step.Status, step.AgentResidence)
			if step.Escalation != nil {
				fmt.Printf("    escalation: %s (%s)\n", step.Escalation.MissingSkill, step.Escalation.PolicyRef)
			}
			if step.Error != "" {
				fmt.Printf("    error: %s\n", step.Error)
			}
		}
	}

	events, err := db.ListEvents(run.ID)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) > 0 {
		fmt.Println("\nEvents:")
		for _, ev := range events {
			line := fmt.Sprintf("  %s  %-16s", ev.CreatedAt.Local().Format("15:04:05"), ev.Type)
			if ev.StepID != "" {
				line += "  " + ev.StepID
			}
			if ev.Message != "" {
				line += "  " + truncateText(ev.Message, 80)
			}
			fmt.Println(line)
		}
	}

	if run.Output != "" {
		fmt.Println("\nOutput:")
		fmt.Println(run.Output)
	}
	return nil
}

func runRunsPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStateDB(cfg)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	deleted, err := db.PurgeOldRuns(runsPurgeOlderThan)
	if err != nil {
		return fmt.Errorf("purge runs: %w", err)
	}
	fmt.Printf("Deleted %d run(s) older than %s.\n", deleted, runsPurgeOlderThan)
	return nil
}

// kindLabel colors a result kind for terminal output.
func kindLabel(kind models.ResultKind) string {
	switch kind {
	case models.ResultOK:
		return color.GreenString("%-10s", string(kind))
	case models.ResultEscalation, models.ResultPartial:
		return color.YellowString("%-10s", string(kind))
	case "":
		return fmt.Sprintf("%-10s", "running")
	default:
		return color.RedString("%-10s", string(kind))
	}
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
