package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/skills"
	"github.com/ShayCichocki/warden/internal/trust"
	"github.com/ShayCichocki/warden/pkg/models"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect resolved skill indexes",
}

var skillsInspectCmd = &cobra.Command{
	Use:   "inspect <residence>",
	Short: "Show the resolved skill index for a residence",
	Long: `Resolve the inherited skill index for a residence and report, for
each skill, whether it may execute at the residence's privilege.

Skills are collected from declaration files along the residence's
ancestry; a child declaration overrides an ancestor's skill with the
same ID. Each skill is then checked against the path-derived
privilege: the privilege gate first, then any required capability.`,
	Args: cobra.ExactArgs(1),
	RunE: runSkillsInspect,
}

func init() {
	skillsCmd.AddCommand(skillsInspectCmd)
}

func runSkillsInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	residence, err := models.ParseResidence(args[0])
	if err != nil {
		return fmt.Errorf("residence %q: %w", args[0], err)
	}

	loader, err := skills.NewLoader(cfg.Trust.SkillsDir)
	if err != nil {
		return fmt.Errorf("skills loader: %w", err)
	}

	index, err := loader.LoadInherited(residence)
	if err != nil {
		return fmt.Errorf("resolve skills: %w", err)
	}

	privilege := residence.Privilege()
	report := trust.ValidateSkillsIndex(index, privilege)

	fmt.Printf("Residence: %s (privilege: %s)\n", residence, privilege)
	fmt.Printf("Skills:    %d total, %d allowed, %d blocked, %d escalatable\n\n",
		report.TotalSkills, report.Allowed, report.Blocked, report.EscalationRequired)

	for _, detail := range report.Details {
		printSkillCheck(detail)
	}
	return nil
}

func printSkillCheck(detail trust.SkillCheckDetail) {
	skill := detail.Skill
	check := detail.Check

	switch {
	case check.Allowed:
		fmt.Printf("  %s %s", color.GreenString("✓"), skill.ID)
	case check.Reason == trust.DenialMissingCapability && check.Escalate:
		fmt.Printf("  %s %s (needs %s, escalatable)", color.YellowString("⇧"), skill.ID, check.Capability)
	case check.Reason == trust.DenialMissingCapability:
		fmt.Printf("  %s %s (needs %s)", color.RedString("✗"), skill.ID, check.Capability)
	default:
		fmt.Printf("  %s %s (requires %s privilege, has %s)",
			color.RedString("✗"), skill.ID, check.Required, check.Current)
	}
	fmt.Printf("  [declared at %s]\n", skill.ResidencePath)
}
