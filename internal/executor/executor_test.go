package executor

import (
	"context"
	"strings"
	"testing"

	"testforge/internal/config"
)

// fakeRunner records commands and plays back canned process results.
type fakeRunner struct {
	results []*ProcessResult
	err     error
	cmds    []Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (*ProcessResult, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	result := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return result, nil
}

func TestExecuteParsesRunnerOutput(t *testing.T) {
	runner := &fakeRunner{results: []*ProcessResult{{
		ExitCode: 1,
		Stdout:   `{"Action":"fail","Package":"p","Test":"TestX","Elapsed":0.1}` + "\n",
		Success:  true,
	}}}
	exec := New(runner, config.Default())

	result, err := exec.Execute(context.Background(), "/tmp/project")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Failed != 1 || result.InfrastructureFailure {
		t.Errorf("result = %+v", result)
	}

	cmd := runner.cmds[0]
	if cmd.Binary != "go" || cmd.Arguments[0] != "test" {
		t.Errorf("unexpected command: %s", cmd.CommandString())
	}
	if !strings.Contains(cmd.CommandString(), "-json") {
		t.Error("test run must request the JSON event stream")
	}
	if cmd.WorkingDir != "/tmp/project" {
		t.Errorf("working dir = %s", cmd.WorkingDir)
	}
}

func TestExecuteFlagsInfrastructureFailure(t *testing.T) {
	runner := &fakeRunner{results: []*ProcessResult{{
		ExitCode: 2,
		Stderr:   "items_test.go:3:1: syntax error",
		Success:  true,
	}}}
	exec := New(runner, config.Default())

	result, err := exec.Execute(context.Background(), "/tmp/project")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.InfrastructureFailure {
		t.Fatal("compile error must surface as an infrastructure failure")
	}
}

func TestExecuteSpawnFailureIsError(t *testing.T) {
	runner := &fakeRunner{results: []*ProcessResult{{
		Success: false,
		Error:   "exec: \"go\": executable file not found in $PATH",
	}}}
	exec := New(runner, config.Default())

	if _, err := exec.Execute(context.Background(), "/tmp/project"); err == nil {
		t.Fatal("spawn failure must be an error")
	}
}

func TestCompileCheck(t *testing.T) {
	runner := &fakeRunner{results: []*ProcessResult{
		{ExitCode: 0, Success: true},
		{ExitCode: 1, Stderr: "undefined: frob", Success: true},
	}}
	exec := New(runner, config.Default())

	ok, _, err := exec.CompileCheck(context.Background(), "/tmp/project")
	if err != nil || !ok {
		t.Fatalf("clean build reported ok=%v err=%v", ok, err)
	}

	ok, output, err := exec.CompileCheck(context.Background(), "/tmp/project")
	if err != nil {
		t.Fatal(err)
	}
	if ok || !strings.Contains(output, "undefined: frob") {
		t.Errorf("broken build: ok=%v output=%q", ok, output)
	}

	// The check must load _test.go files; `go build` ignores them and
	// passes a test-only package with syntax errors.
	for _, cmd := range runner.cmds {
		if cmd.Arguments[0] == "build" {
			t.Errorf("compile check uses go build: %s", cmd.CommandString())
		}
	}
	if runner.cmds[0].Arguments[0] != "vet" {
		t.Errorf("compile check command = %s", runner.cmds[0].CommandString())
	}
}

func TestExecuteTruncatedRunKeepsParsedResults(t *testing.T) {
	// The capture keeps the head of the stream, so a truncated run that
	// completed still carries its first events and must not be taken for
	// an infrastructure failure.
	runner := &fakeRunner{results: []*ProcessResult{{
		ExitCode:  1,
		Stdout:    `{"Action":"fail","Package":"p","Test":"TestX","Elapsed":0.1}` + "\n",
		Truncated: true,
		Success:   true,
	}}}
	exec := New(runner, config.Default())

	result, err := exec.Execute(context.Background(), "/tmp/project")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.InfrastructureFailure {
		t.Error("truncated completed run misclassified as infrastructure failure")
	}
	if result.Failed != 1 || !result.Truncated {
		t.Errorf("result = %+v", result)
	}
}

func TestDirectRunnerFloorsOutputCap(t *testing.T) {
	// A cap below the first event line would let truncation swallow every
	// event of a completed run.
	if r := NewDirectRunner(10); r.maxOutputBytes != minOutputBytes {
		t.Errorf("tiny cap not floored: %d", r.maxOutputBytes)
	}
	if r := NewDirectRunner(0); r.maxOutputBytes != 10*1024*1024 {
		t.Errorf("default cap = %d", r.maxOutputBytes)
	}
	if r := NewDirectRunner(64 * 1024 * 1024); r.maxOutputBytes != 64*1024*1024 {
		t.Errorf("explicit cap lowered: %d", r.maxOutputBytes)
	}
}

func TestLimitedWriterTruncates(t *testing.T) {
	var sb strings.Builder
	lw := &limitedWriter{w: &sb, max: 5}

	n, err := lw.Write([]byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if sb.String() != "hello" {
		t.Errorf("captured %q", sb.String())
	}
	if !lw.truncated {
		t.Error("truncation not flagged")
	}

	// Further writes are swallowed but reported as full.
	if n, _ := lw.Write([]byte("more")); n != 4 {
		t.Errorf("post-cap write = %d", n)
	}
	if sb.String() != "hello" {
		t.Errorf("cap breached: %q", sb.String())
	}
}
