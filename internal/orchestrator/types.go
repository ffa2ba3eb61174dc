package orchestrator

import (
	"time"

	"testforge/internal/executor"
	"testforge/internal/healer"
	"testforge/internal/plan"
)

// Phase is one state of the run state machine.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseWriting    Phase = "writing"
	PhaseExecuting  Phase = "executing"
	PhaseReflecting Phase = "reflecting"
	PhaseFixing     Phase = "fixing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// LogEntry is one line of a run's append-only log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// IterationResult summarizes one execute pass of a run.
type IterationResult struct {
	Iteration    int `json:"iteration"`
	Total        int `json:"total"`
	Passed       int `json:"passed"`
	Failed       int `json:"failed"`
	FixesApplied int `json:"fixesApplied"`
}

// RunState is the full observable state of one run. Snapshots handed to
// readers are immutable; all mutation happens through the registry's
// clone-and-publish surface.
type RunState struct {
	RunID         string                    `json:"runId"`
	SpecID        string                    `json:"specId"`
	BaseDir       string                    `json:"baseDir"`
	BasePackage   string                    `json:"basePackage"`
	Phase         Phase                     `json:"phase"`
	Iteration     int                       `json:"iteration"`
	MaxIterations int                       `json:"maxIterations"`
	Log           []LogEntry                `json:"log"`
	Plan          *plan.TestPlan            `json:"plan,omitempty"`
	Iterations    []IterationResult         `json:"iterations"`
	FinalResult   *executor.ExecutionResult `json:"finalResult,omitempty"`
	Rejected      []healer.RejectedFix      `json:"rejectedFixes,omitempty"`
	Error         string                    `json:"error,omitempty"`
	StartedAt     time.Time                 `json:"startedAt"`
	FinishedAt    time.Time                 `json:"finishedAt,omitempty"`
}

// clone copies the state for publication. Slices are copied so readers
// of an earlier snapshot never observe later appends; Plan and
// FinalResult are shared because they are write-once.
func (s *RunState) clone() *RunState {
	c := *s
	c.Log = append([]LogEntry(nil), s.Log...)
	c.Iterations = append([]IterationResult(nil), s.Iterations...)
	c.Rejected = append([]healer.RejectedFix(nil), s.Rejected...)
	return &c
}

// GeneratedFile is one listable file of a run's project tree.
type GeneratedFile struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// StartRequest describes a run to start.
type StartRequest struct {
	SpecID          string
	MaxIterations   int
	BaseDir         string
	BasePackage     string
	OperationFilter []string
}
