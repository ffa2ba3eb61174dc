// Package executor runs generated test projects through the Go
// toolchain and parses the structured results.
package executor

import (
	"context"
	"fmt"

	"testforge/internal/config"
	"testforge/internal/logging"
)

// Executor runs test projects via a ProcessRunner.
type Executor struct {
	runner ProcessRunner
	cfg    *config.Config
}

// New creates an executor over the given runner.
func New(runner ProcessRunner, cfg *config.Config) *Executor {
	return &Executor{runner: runner, cfg: cfg}
}

// Execute runs the project's full test suite and parses the event
// stream. An error is returned only when the child process could not be
// spawned at all; a failing or non-compiling suite is a result, not an
// error.
func (e *Executor) Execute(ctx context.Context, projectPath string) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, "test run")
	defer timer.Stop()

	proc, err := e.runner.Run(ctx, Command{
		Binary:      "go",
		Arguments:   []string{"test", "./...", "-json", "-count=1"},
		WorkingDir:  projectPath,
		Environment: []string{"CGO_ENABLED=0"},
		Timeout:     e.cfg.TestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test run: %w", err)
	}
	if !proc.Success {
		return nil, fmt.Errorf("failed to spawn test tool: %s", proc.Error)
	}
	if proc.Killed {
		return nil, fmt.Errorf("test run killed: %s", proc.KillReason)
	}

	result := parseTestOutput(proc.Stdout, proc.Stderr, proc.ExitCode)
	result.Duration = proc.Duration
	result.Truncated = proc.Truncated

	if result.InfrastructureFailure {
		logging.ExecutorWarn("test run could not execute (exit=%d, no test events, truncated=%v)",
			proc.ExitCode, proc.Truncated)
	} else {
		logging.Executor("test run: %d total, %d passed, %d failed, %d skipped",
			result.Total, result.Passed, result.Failed, result.Skipped)
	}
	return result, nil
}

// CompileCheck type-checks the project without running tests. `go vet`
// loads _test.go files too; `go build` would skip them and wave through
// a broken test-only package. Returns the tool output and whether the
// check passed; an error only when the process could not be spawned.
func (e *Executor) CompileCheck(ctx context.Context, projectPath string) (bool, string, error) {
	proc, err := e.runner.Run(ctx, Command{
		Binary:      "go",
		Arguments:   []string{"vet", "./..."},
		WorkingDir:  projectPath,
		Environment: []string{"CGO_ENABLED=0"},
		Timeout:     e.cfg.BuildTimeout(),
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to start compile check: %w", err)
	}
	if !proc.Success {
		return false, "", fmt.Errorf("failed to spawn build tool: %s", proc.Error)
	}
	output := proc.Stdout
	if proc.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += proc.Stderr
	}
	ok := proc.ExitCode == 0 && !proc.Killed
	logging.ExecutorDebug("compile check: ok=%v exit=%d", ok, proc.ExitCode)
	return ok, output, nil
}
