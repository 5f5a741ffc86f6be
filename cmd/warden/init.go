package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a warden project",
	Long: `Initialize a directory for use with warden.

Creates the .warden directory structure (skills, trails, state) and a
.warden.yaml template with the default trust layout. The directory
argument is optional and defaults to the current directory.

Examples:
  warden init              # Initialize current directory
  warden init ./myproject  # Initialize specific directory
  warden init --force      # Rewrite templates even if present`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Rewrite template files even if they exist")
}

const configTemplate = `# Warden project configuration.
# Values here override ~/.config/warden/config.yaml.

trust:
  root: agents
  skills_dir: .warden/skills

orchestrator:
  max_parallelism: 5
  queue_timeout: 30s
  total_timeout: 10m
  abort_on_error: false

# anthropic:
#   model: claude-sonnet-4-20250514
#   use_aws_bedrock: false
`

const skillsTemplate = `# Skills declared at the trust root are inherited by every residence.
# Deeper directories may carry their own skills.yaml; a child skill
# with the same id overrides the ancestor's.
skills:
  - id: summarize
    description: Summarize provided text
    privilege: user
  - id: fetch_remote
    description: Fetch a remote resource
    privilege: specialist
    requires: network_access
    escalate_if_missing: true
`

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	fmt.Printf("Initializing warden in %s\n\n", absPath)

	dirs := []string{
		filepath.Join(absPath, ".warden", "skills"),
		filepath.Join(absPath, ".warden", "trails"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .warden directory structure", color.FgGreen)

	wrote, err := writeTemplate(filepath.Join(absPath, ".warden.yaml"), configTemplate)
	if err != nil {
		return err
	}
	if wrote {
		printStatus("✓", "Created .warden.yaml template", color.FgGreen)
	} else {
		printStatus("⚠", ".warden.yaml exists, skipped (use --force to rewrite)", color.FgYellow)
	}

	wrote, err = writeTemplate(filepath.Join(absPath, ".warden", "skills", "skills.yaml"), skillsTemplate)
	if err != nil {
		return err
	}
	if wrote {
		printStatus("✓", "Created example skills.yaml at the trust root", color.FgGreen)
	} else {
		printStatus("⚠", "skills.yaml exists, skipped (use --force to rewrite)", color.FgYellow)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (runs will be bundle-only)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	fmt.Printf("\n%s Warden initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  warden skills inspect agents/net/fetcher    # check the trust layout")
	fmt.Println("  warden run \"your goal\" --bundle-only  # dry-run without a model")
	return nil
}

// writeTemplate writes content unless the file already exists and
// --force was not given. Returns whether the file was written.
func writeTemplate(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
