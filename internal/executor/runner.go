package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"testforge/internal/logging"
)

// Command describes one child process invocation.
type Command struct {
	Binary      string
	Arguments   []string
	WorkingDir  string
	Environment []string
	Timeout     time.Duration
}

// CommandString renders the command for logging.
func (c Command) CommandString() string {
	s := c.Binary
	for _, a := range c.Arguments {
		s += " " + a
	}
	return s
}

// ProcessResult is the outcome of one child process run. Success means
// the infrastructure worked: a non-zero exit code is still a successful
// run, only spawn failures set Success to false.
type ProcessResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	Truncated  bool
	Killed     bool
	KillReason string
	Error      string
	Success    bool
	Duration   time.Duration
}

// ProcessRunner spawns child processes. The indirection exists so the
// pipeline and its tests can run without a real toolchain.
type ProcessRunner interface {
	Run(ctx context.Context, cmd Command) (*ProcessResult, error)
}

// DirectRunner runs commands directly on the host with os/exec.
type DirectRunner struct {
	maxOutputBytes int64
}

// minOutputBytes floors the per-stream cap. limitedWriter keeps the
// head of each stream, and the head must retain the first test events;
// below this a truncated completed run would be indistinguishable from
// one that never started.
const minOutputBytes = 256 * 1024

// NewDirectRunner creates a runner with the given per-stream output cap.
func NewDirectRunner(maxOutputBytes int64) *DirectRunner {
	if maxOutputBytes <= 0 {
		maxOutputBytes = 10 * 1024 * 1024
	}
	if maxOutputBytes < minOutputBytes {
		maxOutputBytes = minOutputBytes
	}
	return &DirectRunner{maxOutputBytes: maxOutputBytes}
}

// Run executes the command under its timeout, capturing stdout and
// stderr with size limits.
func (r *DirectRunner) Run(ctx context.Context, cmd Command) (*ProcessResult, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}

	logging.ExecutorDebug("executing: %s (dir=%s, timeout=%s)",
		cmd.CommandString(), cmd.WorkingDir, cmd.Timeout)

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDir
	execCmd.Env = append(os.Environ(), cmd.Environment...)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: r.maxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: r.maxOutputBytes}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	started := time.Now()
	err := execCmd.Run()

	result := &ProcessResult{
		ExitCode:  0,
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
		Duration:  time.Since(started),
		Success:   true,
	}
	if result.Truncated {
		logging.ExecutorWarn("command output truncated at %d bytes per stream", r.maxOutputBytes)
	}

	if err != nil {
		switch {
		case execCtx.Err() == context.DeadlineExceeded:
			result.Killed = true
			result.KillReason = fmt.Sprintf("timeout after %s", timeout)
			result.ExitCode = -1
			logging.ExecutorWarn("command killed (timeout): %s after %s", cmd.Binary, timeout)
		case execCtx.Err() == context.Canceled:
			result.Killed = true
			result.KillReason = "context canceled"
			result.ExitCode = -1
			logging.ExecutorDebug("command canceled: %s", cmd.Binary)
		default:
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.ExitCode = exitErr.ExitCode()
				logging.ExecutorDebug("command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
			} else {
				result.Success = false
				result.ExitCode = -1
				result.Error = err.Error()
				logging.ExecutorWarn("command failed to run: %s - %v", cmd.Binary, err)
			}
		}
	}

	logging.Executor("command completed: %s -> exit=%d, duration=%s, stdout=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stdout))
	return result, nil
}

// limitedWriter caps total bytes written, discarding the overflow while
// reporting full writes so the child never sees a short-write error.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
