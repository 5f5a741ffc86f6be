package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/plancheck"
	"github.com/ShayCichocki/warden/pkg/models"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Work with plan files",
}

var planValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a YAML plan against the trust boundary",
	Long: `Validate a plan file without executing it.

The plan is checked the same way the orchestrator checks planner
output: step count and parallelism limits, dependency references,
cycle detection, residence syntax, trust-root scope, and escalation
requests against the capabilities the trust root's privilege allows.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanValidate,
}

func init() {
	planCmd.AddCommand(planValidateCmd)
}

func runPlanValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	trustRoot, err := models.ParseResidence(cfg.Trust.Root)
	if err != nil {
		return fmt.Errorf("trust root %q: %w", cfg.Trust.Root, err)
	}

	plan, err := loadPlanFile(args[0])
	if err != nil {
		return err
	}

	constraints := plancheck.ConstraintsFromPrivilege(trustRoot.Privilege())
	result := plancheck.New(trustRoot).Validate(plan, constraints)

	if result.Valid {
		fmt.Printf("%s plan is valid (%d steps, trust root %s)\n",
			color.GreenString("✓"), len(plan.Steps), trustRoot)
		return nil
	}

	fmt.Printf("%s plan rejected: %s\n", color.RedString("✗"), result.Reason)
	if result.StepID != "" {
		fmt.Printf("  step:    %s\n", result.StepID)
	}
	if result.Details != "" {
		fmt.Printf("  details: %s\n", result.Details)
	}
	if len(result.Cycle) > 0 {
		fmt.Printf("  cycle:   %s\n", strings.Join(result.Cycle, " -> "))
	}
	return fmt.Errorf("plan validation failed")
}
