package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"testforge/internal/executor"
	"testforge/internal/healer"
	"testforge/internal/logging"
	"testforge/internal/plan"
)

// runHandle owns one run's state. The driving goroutine is the only
// writer; readers load the atomically published snapshot and never take
// a lock. Every mutation clones the current state, applies the change
// and publishes the clone.
type runHandle struct {
	state    atomic.Pointer[RunState]
	canceled atomic.Bool
}

func (h *runHandle) snapshot() *RunState {
	return h.state.Load()
}

// mutate applies fn to a clone of the current state and publishes it.
// Only the run's driving goroutine may call this.
func (h *runHandle) mutate(fn func(*RunState)) {
	next := h.state.Load().clone()
	fn(next)
	h.state.Store(next)
}

func (h *runHandle) appendLog(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	h.mutate(func(s *RunState) {
		s.Log = append(s.Log, LogEntry{Time: time.Now(), Level: level, Message: msg})
	})
	logging.Run("[%s] %s", h.snapshot().RunID, msg)
}

func (h *runHandle) setPhase(p Phase) {
	h.mutate(func(s *RunState) {
		s.Phase = p
		if p.Terminal() {
			s.FinishedAt = time.Now()
		}
	})
	logging.RunDebug("[%s] phase -> %s", h.snapshot().RunID, p)
}

func (h *runHandle) setIteration(n int) {
	h.mutate(func(s *RunState) { s.Iteration = n })
}

func (h *runHandle) setPlan(p *plan.TestPlan) {
	h.mutate(func(s *RunState) { s.Plan = p })
}

func (h *runHandle) addIterationResult(r IterationResult) {
	h.mutate(func(s *RunState) { s.Iterations = append(s.Iterations, r) })
}

func (h *runHandle) addRejected(rejected []healer.RejectedFix) {
	if len(rejected) == 0 {
		return
	}
	h.mutate(func(s *RunState) { s.Rejected = append(s.Rejected, rejected...) })
}

func (h *runHandle) setFinalResult(r *executor.ExecutionResult) {
	h.mutate(func(s *RunState) { s.FinalResult = r })
}

func (h *runHandle) setError(err error) {
	h.mutate(func(s *RunState) { s.Error = err.Error() })
}

// Registry is the process-wide run registry keyed by run id. It is
// injected into the orchestrator at construction; inserts and reads are
// concurrent, writes to an entry belong to its driving goroutine alone.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*runHandle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*runHandle)}
}

// insert registers a new run and publishes its initial state.
func (r *Registry) insert(initial *RunState) *runHandle {
	h := &runHandle{}
	h.state.Store(initial)

	r.mu.Lock()
	r.runs[initial.RunID] = h
	r.mu.Unlock()
	return h
}

// get returns the handle for a run id.
func (r *Registry) get(runID string) (*runHandle, bool) {
	r.mu.RLock()
	h, ok := r.runs[runID]
	r.mu.RUnlock()
	return h, ok
}

// RunIDs lists the registered run ids.
func (r *Registry) RunIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	return ids
}
