package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/config"
)

// exitCode is set by subcommands that carry their own exit-code
// contract (run maps the result kind to 0/10/20/30/40).
var exitCode int

var configPath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Trust-bounded agent orchestration",
	Long: `Warden orchestrates LLM agents inside a filesystem-shaped trust
hierarchy. Every agent lives at a residence path under the trust root;
the path determines its privilege, and skills it inherits from ancestor
directories are validated against that privilege before any step runs.

Plans are DAGs of steps. Warden validates each plan against the trust
boundary, schedules ready steps with bounded parallelism, and surfaces
privilege gaps as structured escalations instead of failures.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and applies the exit-code contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// loadConfig loads configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
