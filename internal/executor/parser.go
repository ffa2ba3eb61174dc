package executor

import (
	"bufio"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// TestStatus is the terminal status of one test.
type TestStatus string

const (
	StatusPass TestStatus = "pass"
	StatusFail TestStatus = "fail"
	StatusSkip TestStatus = "skip"
)

// TestDetail is the parsed outcome of one test function.
type TestDetail struct {
	Name    string        `json:"name"`
	Package string        `json:"package"`
	Status  TestStatus    `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
	Output  string        `json:"output"`
}

// ExecutionResult is the parsed outcome of one test run.
type ExecutionResult struct {
	Total                 int          `json:"total"`
	Passed                int          `json:"passed"`
	Failed                int          `json:"failed"`
	Skipped               int          `json:"skipped"`
	Details               []TestDetail `json:"details,omitempty"`
	InfrastructureFailure bool         `json:"infrastructureFailure"`
	Truncated             bool         `json:"truncated,omitempty"`
	RawOutput             string       `json:"-"`
	Duration              time.Duration `json:"duration"`
}

// Detail returns the detail for a test name, nil when absent.
func (r *ExecutionResult) Detail(name string) *TestDetail {
	for i := range r.Details {
		if r.Details[i].Name == name {
			return &r.Details[i]
		}
	}
	return nil
}

// FailedDetails returns the failing tests in name order.
func (r *ExecutionResult) FailedDetails() []TestDetail {
	var failed []TestDetail
	for _, d := range r.Details {
		if d.Status == StatusFail {
			failed = append(failed, d)
		}
	}
	return failed
}

// testEvent is one line of the toolchain's -json event stream.
type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Output  string  `json:"Output"`
	Elapsed float64 `json:"Elapsed"`
}

// parseTestOutput parses a `go test -json` event stream into an
// ExecutionResult. The exit code is not authoritative: a non-zero exit
// with per-test events is a completed run with failures, while a
// non-zero exit with no test events at all (compile error, missing
// dependency) is an infrastructure failure. Capture truncation drops
// the tail of the stream, never the head, so a completed run keeps its
// first events and an event-free stream stays a reliable signal.
func parseTestOutput(stdout, stderr string, exitCode int) *ExecutionResult {
	result := &ExecutionResult{RawOutput: stdout}
	if stderr != "" {
		result.RawOutput += "\n" + stderr
	}

	type acc struct {
		status  TestStatus
		pkg     string
		elapsed float64
		output  strings.Builder
		ended   bool
	}
	tests := make(map[string]*acc)
	order := make([]string, 0)

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var ev testEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if ev.Test == "" {
			continue
		}
		// Subtests roll up into their parent.
		name := ev.Test
		if idx := strings.Index(name, "/"); idx != -1 {
			name = name[:idx]
		}

		a, ok := tests[name]
		if !ok {
			a = &acc{pkg: ev.Package}
			tests[name] = a
			order = append(order, name)
		}

		switch ev.Action {
		case "output":
			a.output.WriteString(ev.Output)
		case "pass":
			if !a.ended || a.status == StatusPass {
				a.status, a.elapsed, a.ended = StatusPass, ev.Elapsed, true
			}
		case "fail":
			a.status, a.elapsed, a.ended = StatusFail, ev.Elapsed, true
		case "skip":
			if !a.ended {
				a.status, a.elapsed, a.ended = StatusSkip, ev.Elapsed, true
			}
		}
	}

	for _, name := range order {
		a := tests[name]
		if !a.ended {
			// No terminal event: the process died mid-test.
			a.status = StatusFail
		}
		result.Details = append(result.Details, TestDetail{
			Name:    name,
			Package: a.pkg,
			Status:  a.status,
			Elapsed: time.Duration(a.elapsed * float64(time.Second)),
			Output:  a.output.String(),
		})
		switch a.status {
		case StatusPass:
			result.Passed++
		case StatusFail:
			result.Failed++
		case StatusSkip:
			result.Skipped++
		}
	}
	result.Total = len(result.Details)

	sort.Slice(result.Details, func(i, j int) bool {
		return result.Details[i].Name < result.Details[j].Name
	})

	if result.Total == 0 && exitCode != 0 {
		result.InfrastructureFailure = true
	}
	return result
}
