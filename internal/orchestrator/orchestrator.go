// Package orchestrator drives the plan, write, execute, reflect, fix
// loop and owns the run state machine.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"testforge/internal/apispec"
	"testforge/internal/config"
	"testforge/internal/executor"
	"testforge/internal/filestore"
	"testforge/internal/healer"
	"testforge/internal/llm"
	"testforge/internal/logging"
	"testforge/internal/plan"
	"testforge/internal/report"
	"testforge/internal/writer"
)

const defaultMaxIterations = 3

// Service starts runs and serves their state.
type Service struct {
	provider apispec.Provider
	client   llm.Client
	runner   executor.ProcessRunner
	cfg      *config.Config
	registry *Registry
}

// NewService wires an orchestrator from its collaborators. The registry
// is injected so tests and embedders control its lifetime.
func NewService(provider apispec.Provider, client llm.Client, runner executor.ProcessRunner, cfg *config.Config, registry *Registry) *Service {
	return &Service{
		provider: provider,
		client:   client,
		runner:   runner,
		cfg:      cfg,
		registry: registry,
	}
}

// StartRun accepts a run synchronously and executes it in the
// background. The spec lookup happens up front so an unknown spec id
// fails the call, not the run.
func (s *Service) StartRun(ctx context.Context, req StartRequest) (string, error) {
	if req.BaseDir == "" {
		return "", fmt.Errorf("base directory is required")
	}
	spec, err := s.provider.GetByID(req.SpecID)
	if err != nil {
		return "", fmt.Errorf("spec %s: %w", req.SpecID, err)
	}
	if len(req.OperationFilter) > 0 {
		spec = spec.Filter(req.OperationFilter)
		if len(spec.Operations) == 0 {
			return "", fmt.Errorf("operation filter matches nothing in spec %s", req.SpecID)
		}
	}
	if req.MaxIterations <= 0 {
		req.MaxIterations = defaultMaxIterations
	}
	if req.BasePackage == "" {
		req.BasePackage = "apitest"
	}

	runID := strings.Split(uuid.New().String(), "-")[0]
	h := s.registry.insert(&RunState{
		RunID:         runID,
		SpecID:        req.SpecID,
		BaseDir:       req.BaseDir,
		BasePackage:   req.BasePackage,
		Phase:         PhasePlanning,
		MaxIterations: req.MaxIterations,
		StartedAt:     time.Now(),
	})
	logging.Run("run %s accepted for spec %s (%d operations, max %d iterations)",
		runID, req.SpecID, len(spec.Operations), req.MaxIterations)

	go s.drive(h, spec, req)
	return runID, nil
}

// Status returns a point-in-time snapshot of a run's state. The read is
// lock-free; a snapshot is always a valid prefix of the final state.
func (s *Service) Status(runID string) (RunState, bool) {
	h, ok := s.registry.get(runID)
	if !ok {
		return RunState{}, false
	}
	return *h.snapshot(), true
}

// Cancel marks a run canceled. The only cancellation point is before
// the next iteration is scheduled; in-flight work finishes.
func (s *Service) Cancel(runID string) bool {
	h, ok := s.registry.get(runID)
	if !ok {
		return false
	}
	h.canceled.Store(true)
	h.appendLog("info", "cancellation requested; finishing in-flight work")
	return true
}

// GeneratedFiles lists a run's project tree through the store denylist.
func (s *Service) GeneratedFiles(runID string) ([]GeneratedFile, error) {
	h, ok := s.registry.get(runID)
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	store, err := filestore.New(h.snapshot().BaseDir)
	if err != nil {
		return nil, err
	}
	listed, err := store.List()
	if err != nil {
		return nil, err
	}
	files := make([]GeneratedFile, 0, len(listed))
	for _, f := range listed {
		files = append(files, GeneratedFile{
			Path:     f.Path,
			Content:  f.Content,
			Language: filestore.DetectLanguage(f.Path),
		})
	}
	return files, nil
}

// drive is the run's single driving goroutine. Phases are strictly
// sequential; every state mutation goes through the handle.
func (s *Service) drive(h *runHandle, spec *apispec.Spec, req StartRequest) {
	defer func() {
		if r := recover(); r != nil {
			h.setError(fmt.Errorf("panic in run driver: %v", r))
			h.setPhase(PhaseFailed)
			logging.RunWarn("[%s] run driver panicked: %v", h.snapshot().RunID, r)
		}
	}()

	// Planning.
	h.appendLog("info", "planning tests for %s (%d operations)", spec.Title, len(spec.Operations))
	planner := plan.NewPlanner(s.client, s.cfg.Planner)

	planCtx, cancelPlan := context.WithTimeout(context.Background(), s.cfg.LLMTimeout())
	testPlan, err := planner.Plan(planCtx, spec)
	cancelPlan()
	if err != nil {
		s.fail(h, fmt.Errorf("planning failed: %w", err))
		return
	}
	if len(testPlan.Items) == 0 {
		s.fail(h, fmt.Errorf("planning produced an empty plan"))
		return
	}
	h.setPlan(testPlan)
	h.appendLog("info", "plan ready: %d items", len(testPlan.Items))

	// Writing.
	h.setPhase(PhaseWriting)
	store, err := filestore.New(req.BaseDir)
	if err != nil {
		s.fail(h, fmt.Errorf("write failed: %w", err))
		return
	}
	w := writer.New(s.client, store, s.cfg)

	writeCtx, cancelWrite := context.WithTimeout(context.Background(), s.cfg.LLMTimeout())
	writeResult, err := w.Write(writeCtx, testPlan, req.BasePackage)
	cancelWrite()
	if err != nil {
		s.fail(h, fmt.Errorf("write failed: %w", err))
		return
	}
	h.appendLog("info", "wrote %d files (%d/%d chunks deterministic fallback)",
		len(writeResult.Files), writeResult.FallbackChunks, writeResult.TotalChunks)

	exec := executor.New(s.runner, s.cfg)
	heal := healer.New(s.client, store, exec, s.cfg)
	rep := report.New(store)
	runID := h.snapshot().RunID

	// Execute, reflect, fix loop.
	var lastResult *executor.ExecutionResult
	fixedThisRun := false
	var preFix map[string]string
	var preFixCreated []string

	for iteration := 0; ; {
		h.setPhase(PhaseExecuting)
		h.appendLog("info", "executing tests (iteration %d)", iteration)

		result, err := exec.Execute(context.Background(), store.Root())
		if err != nil {
			s.fail(h, fmt.Errorf("execution failed: %w", err))
			return
		}

		if result.InfrastructureFailure {
			if !fixedThisRun {
				s.fail(h, fmt.Errorf("tests could not execute at all (compile error or missing dependency); raw output tail: %s",
					tail(result.RawOutput, 500)))
				return
			}
			// A fix broke the build at test time; undo it and end with
			// the pre-fix results.
			h.appendLog("warn", "tests could not execute after applying fixes; reverting the last fix set")
			for path, content := range preFix {
				if werr := store.WriteFile(path, content); werr != nil {
					s.fail(h, fmt.Errorf("failed to revert fix to %s: %w", path, werr))
					return
				}
			}
			for _, path := range preFixCreated {
				if werr := store.Remove(path); werr != nil {
					s.fail(h, fmt.Errorf("failed to revert fix to %s: %w", path, werr))
					return
				}
			}
			s.finish(h, rep, runID, testPlan, lastResult)
			return
		}

		lastResult = result
		fixedThisRun = false
		h.addIterationResult(IterationResult{
			Iteration: iteration,
			Total:     result.Total,
			Passed:    result.Passed,
			Failed:    result.Failed,
		})
		h.appendLog("info", "iteration %d: %d/%d passed, %d failed",
			iteration, result.Passed, result.Total, result.Failed)

		if result.Failed == 0 {
			s.finish(h, rep, runID, testPlan, result)
			return
		}

		// Reflecting.
		h.setPhase(PhaseReflecting)
		reflectCtx, cancelReflect := context.WithTimeout(context.Background(), s.cfg.LLMTimeout())
		reflection, err := heal.Reflect(reflectCtx, result, testPlan)
		cancelReflect()
		if err != nil {
			s.fail(h, fmt.Errorf("reflection failed: %w", err))
			return
		}
		for _, name := range reflection.FalsePositives {
			h.appendLog("info", "%s is a false positive: the API returned the expected error status", name)
		}
		for _, name := range reflection.SuspectedDefects {
			h.appendLog("warn", "%s: suspected defect in the tested API (expected an error status, got success); needs human review", name)
		}
		for _, rej := range reflection.Rejected {
			h.appendLog("warn", "fix for %s rejected: %s", rej.Path, rej.Reason)
		}
		h.addRejected(reflection.Rejected)

		if len(reflection.Fixes) == 0 || iteration+1 >= h.snapshot().MaxIterations {
			if len(reflection.Fixes) > 0 {
				h.appendLog("info", "iteration budget exhausted; remaining failures recorded")
			} else {
				h.appendLog("info", "no applicable fixes; remaining failures recorded")
			}
			s.finish(h, rep, runID, testPlan, result)
			return
		}

		if h.canceled.Load() {
			h.appendLog("info", "run canceled; skipping the next iteration")
			s.finish(h, rep, runID, testPlan, result)
			return
		}

		// Fixing.
		h.setPhase(PhaseFixing)
		preFix = make(map[string]string, len(reflection.Fixes))
		preFixCreated = nil
		for _, fix := range reflection.Fixes {
			if store.Exists(fix.Path) {
				if content, rerr := store.ReadFile(fix.Path); rerr == nil {
					preFix[fix.Path] = content
				}
				continue
			}
			preFixCreated = append(preFixCreated, fix.Path)
		}

		applied, err := heal.Apply(context.Background(), reflection.Fixes, store.Root())
		if err != nil {
			s.fail(h, fmt.Errorf("fix application failed: %w", err))
			return
		}
		if applied.CompileFailed {
			h.appendLog("warn", "fix set failed to compile and was reverted; remaining failures recorded")
			s.finish(h, rep, runID, testPlan, result)
			return
		}
		h.appendLog("info", "applied %d fixes", len(applied.Applied))
		h.mutate(func(st *RunState) {
			last := len(st.Iterations) - 1
			st.Iterations[last].FixesApplied = len(applied.Applied)
		})

		fixedThisRun = true
		iteration++
		h.setIteration(iteration)
	}
}

// finish ends a run in done, generating the best-effort report first.
func (s *Service) finish(h *runHandle, rep *report.Reporter, runID string, testPlan *plan.TestPlan, result *executor.ExecutionResult) {
	if result != nil {
		if err := rep.Generate(runID, testPlan, result); err != nil {
			logging.ReportWarn("[%s] report generation failed: %v", runID, err)
			h.appendLog("warn", "report generation failed: %v", err)
		}
		h.setFinalResult(result)
		if result.Failed == 0 {
			h.appendLog("info", "run completed: all %d tests passing", result.Total)
		} else {
			h.appendLog("info", "run completed with %d remaining failures (%d/%d passing)",
				result.Failed, result.Passed, result.Total)
		}
	}
	h.setPhase(PhaseDone)
}

// fail ends a run in failed with the error recorded.
func (s *Service) fail(h *runHandle, err error) {
	h.setError(err)
	h.appendLog("error", "%v", err)
	h.setPhase(PhaseFailed)
	logging.RunWarn("[%s] run failed: %v", h.snapshot().RunID, err)
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
