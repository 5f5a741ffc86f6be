package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/warden/internal/bundle"
	"github.com/ShayCichocki/warden/internal/config"
	"github.com/ShayCichocki/warden/internal/limiter"
	"github.com/ShayCichocki/warden/internal/llm"
	"github.com/ShayCichocki/warden/internal/orchestrator"
	"github.com/ShayCichocki/warden/internal/plancheck"
	"github.com/ShayCichocki/warden/internal/skills"
	"github.com/ShayCichocki/warden/internal/state"
	"github.com/ShayCichocki/warden/internal/tui"
	"github.com/ShayCichocki/warden/pkg/models"
)

var (
	runPlanFile     string
	runHeadless     bool
	runBundleOnly   bool
	runAbortOnError bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a goal through the orchestration pipeline",
	Long: `Run a goal through the supervisor / parser / planner pipeline and
execute the resulting plan under the trust boundary.

By default the planner decides the plan. With --plan, the given YAML
plan file is validated and executed directly, skipping the planner.

With --bundle-only (or when no Anthropic credentials are available),
no model is called: each step resolves its agent bundle, validates
skills against the residence privilege, and reports the outcome. This
is the mode for dry-running a trust layout.

Exit codes follow the result kind:
  0   ok
  10  partial (some steps failed, run not aborted)
  20  escalation (a privilege grant is required)
  30  error
  40  cancelled`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "YAML plan file to execute instead of planning")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (print events to stdout)")
	runCmd.Flags().BoolVar(&runBundleOnly, "bundle-only", false, "Resolve bundles and validate skills without calling the model")
	runCmd.Flags().BoolVar(&runAbortOnError, "abort-on-error", false, "Stop scheduling new steps after the first step error")
}

func runTask(cmd *cobra.Command, args []string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runTask: %v", r)
		}
	}()

	goal := args[0]
	verbose := os.Getenv("WARDEN_DEBUG") != ""

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("abort-on-error") {
		cfg.Orchestrator.AbortOnError = runAbortOnError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	var plan *models.PlannerOutput
	if runPlanFile != "" {
		plan, err = loadPlanFile(runPlanFile)
		if err != nil {
			return err
		}
	}

	db, err := openStateDB(cfg)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	trustRoot, err := models.ParseResidence(cfg.Trust.Root)
	if err != nil {
		return fmt.Errorf("trust root %q: %w", cfg.Trust.Root, err)
	}

	if err := os.MkdirAll(cfg.Trust.SkillsDir, 0o755); err != nil {
		return fmt.Errorf("create skills dir: %w", err)
	}
	loader, err := skills.NewLoader(cfg.Trust.SkillsDir)
	if err != nil {
		return fmt.Errorf("skills loader: %w", err)
	}
	if verbose {
		loader.SetDebugLog(func(format string, a ...interface{}) {
			fmt.Printf("[DEBUG] "+format+"\n", a...)
		})
	}
	cache := skills.NewCache(loader)
	defer cache.Close()

	resolver := bundle.NewFSResolver(cache, cfg.State.TrailDir)

	client := buildLLMClient(cfg)

	constraints := plancheck.ConstraintsFromPrivilege(trustRoot.Privilege())
	if cfg.Orchestrator.MaxParallelism > 0 && cfg.Orchestrator.MaxParallelism < constraints.MaxParallelism {
		constraints.MaxParallelism = cfg.Orchestrator.MaxParallelism
	}

	lim, err := limiter.New(constraints.MaxParallelism, cfg.Orchestrator.QueueTimeout)
	if err != nil {
		return fmt.Errorf("limiter: %w", err)
	}

	useTUI := !runHeadless && isTerminal()
	var program *tea.Program
	var view *tui.RunView
	var sink func(orchestrator.Event)
	if useTUI {
		view = tui.NewRunView(goal)
		program = tea.NewProgram(view)
		sink = tuiForwarder(program)
	} else {
		sink = headlessPrinter()
	}

	opts := []orchestrator.Option{
		orchestrator.WithLLMClient(client),
		orchestrator.WithLimiter(lim),
		orchestrator.WithConstraints(constraints),
		orchestrator.WithAbortOnError(cfg.Orchestrator.AbortOnError),
		orchestrator.WithTotalTimeout(cfg.Orchestrator.TotalTimeout),
		orchestrator.WithMaxTokens(cfg.Orchestrator.MaxTokens),
		orchestrator.WithEventHandler(persistingHandler(db, goal, sink)),
	}
	if verbose {
		opts = append(opts, orchestrator.WithDebugLog(func(format string, a ...interface{}) {
			fmt.Printf("[DEBUG] "+format+"\n", a...)
		}))
	}

	orch, err := orchestrator.New(orchestrator.RequiredConfig{
		TrustRoot: trustRoot,
		Resolver:  resolver,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}
	defer orch.Close()

	req := orchestrator.RunRequest{Input: goal, Plan: plan}

	var result *models.OrchestrationResult
	if useTUI {
		result, err = runWithTUI(ctx, orch, req, program, view)
		if err != nil {
			return err
		}
	} else {
		fmt.Printf("Starting run: %s\n\n", goal)
		result = orch.Run(ctx, req)
		printResult(result)
	}

	// Flush pending events so the run row exists before it is finalized.
	orch.Close()

	if err := db.FinishRun(result); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: persist run: %v\n", err)
	}
	if task, err := orch.Registry().Get(result.RunID); err == nil {
		if err := db.SaveTask(&task); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: persist task: %v\n", err)
		}
	}

	exitCode = result.Kind.ExitCode()
	return nil
}

// buildLLMClient returns the Anthropic client, or the unconfigured
// stand-in when bundle-only mode was requested or no credentials exist.
func buildLLMClient(cfg *config.Config) llm.Client {
	if runBundleOnly {
		return llm.Unconfigured{}
	}
	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		Model:            anthropic.Model(cfg.Anthropic.Model),
		APIKey:           cfg.Anthropic.APIKey,
		UseAWSBedrock:    cfg.Anthropic.UseAWSBedrock,
		AWSRegion:        cfg.Anthropic.AWSRegion,
		AWSProfile:       cfg.Anthropic.AWSProfile,
		DefaultMaxTokens: cfg.Orchestrator.MaxTokens,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v; continuing in bundle-only mode\n", err)
		return llm.Unconfigured{}
	}
	return client
}

// openStateDB opens the configured database, defaulting to the
// project-local one under .warden/.
func openStateDB(cfg *config.Config) (*state.DB, error) {
	if cfg.State.DBPath != "" {
		return state.Open(cfg.State.DBPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return state.OpenProject(cwd)
}

// loadPlanFile parses a YAML plan file.
func loadPlanFile(path string) (*models.PlannerOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	var plan models.PlannerOutput
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan file %s has no steps", path)
	}
	return &plan, nil
}

// persistingHandler records every event in the state database and
// forwards it to next. Persistence failures are logged, never fatal.
func persistingHandler(db *state.DB, goal string, next func(orchestrator.Event)) func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		switch ev.Type {
		case orchestrator.EventRunStarted:
			if err := db.StartRun(ev.RunID, goal, ev.Timestamp); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: record run start: %v\n", err)
			}
		default:
			if err := db.AppendEvent(ev.RunID, string(ev.Type), ev.StepID, ev.Message); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: record event: %v\n", err)
			}
		}
		if next != nil {
			next(ev)
		}
	}
}

// headlessPrinter prints events to stdout.
func headlessPrinter() func(orchestrator.Event) {
	return func(ev orchestrator.Event) {
		switch ev.Type {
		case orchestrator.EventStepStarted:
			fmt.Printf("[STARTED] %s @ %s\n", ev.StepID, ev.Residence)
		case orchestrator.EventStepCompleted:
			switch ev.Status {
			case models.StepStatusSuccess:
				fmt.Printf("[DONE] %s\n", ev.StepID)
			case models.StepStatusEscalated:
				fmt.Printf("[ESCALATED] %s: %s\n", ev.StepID, ev.Message)
			default:
				fmt.Printf("[FAILED] %s: %s\n", ev.StepID, ev.Message)
			}
		case orchestrator.EventEscalation:
			if ev.Escalation != nil {
				fmt.Printf("[ESCALATION] %s needs %s (%s)\n",
					ev.StepID, ev.Escalation.Capability, ev.Escalation.PolicyRef)
			}
		case orchestrator.EventRunCompleted:
			fmt.Printf("[RUN] %s: %s\n", ev.RunID, ev.Kind)
		}
	}
}

// isTerminal reports whether stdout looks like an interactive terminal.
func isTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// printResult writes the terminal result summary for headless runs.
func printResult(result *models.OrchestrationResult) {
	fmt.Println()
	fmt.Printf("Run %s finished: %s (%s)\n", result.RunID, result.Kind, result.Duration.Round(time.Millisecond))
	switch result.Kind {
	case models.ResultOK, models.ResultPartial:
		if result.Output != "" {
			fmt.Println()
			fmt.Println(result.Output)
		}
	case models.ResultEscalation:
		if esc := result.Escalation; esc != nil {
			fmt.Printf("\nEscalation required: skill %s at %s\n", esc.MissingSkill, esc.Residence)
			fmt.Printf("  Policy: %s\n", esc.PolicyRef)
			for _, alt := range esc.SuggestedAlternatives {
				fmt.Printf("  Alternative: %s\n", alt)
			}
		}
	default:
		if result.Error != "" {
			fmt.Printf("\nError: %s\n", result.Error)
		}
	}
}
