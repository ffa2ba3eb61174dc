package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"testforge/internal/apispec"
	"testforge/internal/config"
	"testforge/internal/executor"
	"testforge/internal/llm"
	"testforge/internal/logging"
	"testforge/internal/orchestrator"
	"testforge/internal/plan"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Logger
	logger *zap.Logger

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testforge",
	Short: "testforge - autonomous API functional test generation",
	Long: `testforge converts an API description into a verified set of passing
functional tests without hand-written test code.

It plans test cases (LLM positives plus deterministic negatives and edge
cases), generates a Go test project, executes it, diagnoses failures and
patches the test code, iterating until tests pass or the iteration budget
is exhausted. Negative tests are never "fixed" by weakening their expected
error status.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd drives one full pipeline run
var runCmd = &cobra.Command{
	Use:   "run [spec-file]",
	Short: "Generate, execute and heal functional tests for an API spec",
	Long: `Runs the full pipeline for the given API spec file:
  1. Plan: LLM positive paths + deterministic negative and edge cases
  2. Write: generate a buildable Go test project
  3. Execute: run the tests against the target API
  4. Reflect: diagnose genuine failures, filter false positives
  5. Fix: patch test code and re-execute, up to the iteration budget

The target API base URL comes from the spec file; set TESTFORGE_BASE_URL
to point the generated tests at a different deployment.

Example:
  testforge run petstore.yaml --dir ./generated --max-iterations 3`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

// planCmd prints the plan without writing or executing anything
var planCmd = &cobra.Command{
	Use:   "plan [spec-file]",
	Short: "Print the test plan for an API spec without generating code",
	Args:  cobra.ExactArgs(1),
	RunE:  printPlan,
}

var (
	runDir           string
	runPackage       string
	runMaxIterations int
	runFilter        []string
	runShowFiles     bool
	pollInterval     time.Duration
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	runCmd.Flags().StringVar(&runDir, "dir", "./generated-tests", "Directory for the generated test project")
	runCmd.Flags().StringVar(&runPackage, "package", "apitest", "Module path of the generated project")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 3, "Self-heal iteration budget")
	runCmd.Flags().StringSliceVar(&runFilter, "operation", nil, "Restrict the run to these operation ids")
	runCmd.Flags().BoolVar(&runShowFiles, "show-files", false, "List generated files when the run ends")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "Status poll interval")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runPipeline starts a run and polls its status until it terminates.
func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spec, svc, err := buildService(ctx, args[0])
	if err != nil {
		return err
	}

	runID, err := svc.StartRun(ctx, orchestrator.StartRequest{
		SpecID:          spec.ID,
		MaxIterations:   runMaxIterations,
		BaseDir:         runDir,
		BasePackage:     runPackage,
		OperationFilter: runFilter,
	})
	if err != nil {
		return err
	}
	logger.Info("Run started", zap.String("runId", runID), zap.String("spec", spec.ID))

	// First interrupt cancels the run at the next iteration boundary,
	// second aborts the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Interrupt received, canceling run at the next iteration boundary")
		svc.Cancel(runID)
		<-sigCh
		os.Exit(1)
	}()

	printed := 0
	for {
		state, ok := svc.Status(runID)
		if !ok {
			return fmt.Errorf("run %s disappeared", runID)
		}
		for ; printed < len(state.Log); printed++ {
			entry := state.Log[printed]
			fmt.Printf("[%s] %-5s %s\n", entry.Time.Format("15:04:05"), entry.Level, entry.Message)
		}
		if state.Phase.Terminal() {
			return reportOutcome(svc, runID, state)
		}
		time.Sleep(pollInterval)
	}
}

// reportOutcome prints the terminal summary and maps it to an exit
// error.
func reportOutcome(svc *orchestrator.Service, runID string, state orchestrator.RunState) error {
	if runShowFiles {
		files, err := svc.GeneratedFiles(runID)
		if err != nil {
			logger.Warn("Failed to list generated files", zap.Error(err))
		} else {
			fmt.Println("\nGenerated files:")
			for _, f := range files {
				fmt.Printf("  %s (%s, %d bytes)\n", f.Path, f.Language, len(f.Content))
			}
		}
	}

	if state.Phase == orchestrator.PhaseFailed {
		return fmt.Errorf("run %s failed: %s", runID, state.Error)
	}
	if state.FinalResult != nil && state.FinalResult.Failed > 0 {
		fmt.Printf("\nRun %s completed with %d remaining failures (%d/%d passing)\n",
			runID, state.FinalResult.Failed, state.FinalResult.Passed, state.FinalResult.Total)
		return nil
	}
	if state.FinalResult != nil {
		fmt.Printf("\nRun %s completed: all %d tests passing\n", runID, state.FinalResult.Total)
	}
	return nil
}

// printPlan plans only and renders the result as YAML.
func printPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout())
	defer cancel()

	spec, err := apispec.LoadFile(args[0])
	if err != nil {
		return err
	}
	client, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	planner := plan.NewPlanner(client, cfg.Planner)
	testPlan, err := planner.Plan(ctx, spec)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(testPlan)
	if err != nil {
		return fmt.Errorf("failed to render plan: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// buildService loads the spec file and wires the orchestrator.
func buildService(ctx context.Context, specPath string) (*apispec.Spec, *orchestrator.Service, error) {
	spec, err := apispec.LoadFile(specPath)
	if err != nil {
		return nil, nil, err
	}
	provider := apispec.NewRegistry()
	if err := provider.Register(spec); err != nil {
		return nil, nil, err
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	runner := executor.NewDirectRunner(cfg.Execution.MaxOutputBytes)
	registry := orchestrator.NewRegistry()
	svc := orchestrator.NewService(provider, client, runner, cfg, registry)
	return spec, svc, nil
}
