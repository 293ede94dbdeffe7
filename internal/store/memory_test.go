package store

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/leadflow/internal/workflow"
)

func testPlan() []workflow.PlanStep {
	return []workflow.PlanStep{
		{Agent: workflow.KindScout, Params: map[string]any{"niche": "gyms"}},
		{Agent: workflow.KindQualifier, Params: map[string]any{"min_score": 60}},
		{Agent: workflow.KindOutreachEmail, Params: map[string]any{}},
	}
}

func TestCreateWorkflowStepStates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	w, steps, err := s.CreateWorkflow(ctx, "user-1", "find gym leads", testPlan())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Status != workflow.StatusRunning {
		t.Errorf("workflow status = %s", w.Status)
	}
	if len(w.Memory) != 0 {
		t.Errorf("memory should start empty, got %v", w.Memory)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Status != workflow.StepRunning || steps[0].StartedAt == nil {
		t.Errorf("step 0 should be running with started_at, got %s", steps[0].Status)
	}
	for _, st := range steps[1:] {
		if st.Status != workflow.StepPending {
			t.Errorf("step %d should be pending, got %s", st.Position, st.Status)
		}
	}
}

func TestMarkStepRunningGuarded(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, steps, _ := s.CreateWorkflow(ctx, "u", "g", testPlan())

	// Step 1 is pending: first mark wins, second is a no-op.
	ok, err := s.MarkStepRunning(ctx, steps[1].ID)
	if err != nil || !ok {
		t.Fatalf("first mark: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkStepRunning(ctx, steps[1].ID)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if ok {
		t.Error("second mark should report false")
	}

	if _, err := s.MarkStepRunning(ctx, "missing"); err == nil {
		t.Error("missing step should error")
	}
}

func TestCompleteAndFailStepGuarded(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, steps, _ := s.CreateWorkflow(ctx, "u", "g", testPlan())
	running := steps[0].ID

	if err := s.CompleteStep(ctx, running, map[string]any{"n": 1}); err != nil {
		t.Fatalf("complete running step: %v", err)
	}
	// Completed is terminal.
	if err := s.CompleteStep(ctx, running, nil); err == nil {
		t.Error("double complete should error")
	}
	if err := s.FailStep(ctx, running, "late failure"); err == nil {
		t.Error("fail after complete should error")
	}

	st, err := s.GetStep(ctx, running)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Status != workflow.StepCompleted || st.Output["n"] != 1 || st.CompletedAt == nil {
		t.Errorf("unexpected step state: %+v", st)
	}

	// Pending steps cannot be completed directly.
	if err := s.CompleteStep(ctx, steps[1].ID, nil); err == nil {
		t.Error("completing a pending step should error")
	}
}

func TestNextPendingStepOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	w, steps, _ := s.CreateWorkflow(ctx, "u", "g", testPlan())

	next, err := s.NextPendingStep(ctx, w.ID)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next == nil || next.ID != steps[1].ID {
		t.Fatalf("expected step 1 next, got %+v", next)
	}

	s.MarkStepRunning(ctx, steps[1].ID)
	next, _ = s.NextPendingStep(ctx, w.ID)
	if next == nil || next.ID != steps[2].ID {
		t.Fatalf("expected step 2 next, got %+v", next)
	}

	s.MarkStepRunning(ctx, steps[2].ID)
	next, _ = s.NextPendingStep(ctx, w.ID)
	if next != nil {
		t.Errorf("expected nil when none pending, got %+v", next)
	}
}

func TestMergeMemoryAccumulates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	w, _, _ := s.CreateWorkflow(ctx, "u", "g", testPlan())

	m1, err := s.MergeMemory(ctx, w.ID, workflow.Memory{"a": 1})
	if err != nil {
		t.Fatalf("merge 1: %v", err)
	}
	if m1["a"] != 1 {
		t.Errorf("merge 1 result: %v", m1)
	}

	m2, _ := s.MergeMemory(ctx, w.ID, workflow.Memory{"b": 2, "a": 9})
	if m2["a"] != 9 || m2["b"] != 2 {
		t.Errorf("merge 2 result: %v", m2)
	}

	// Returned memory is a copy; mutating it must not leak into the store.
	m2["c"] = "rogue"
	got, _ := s.GetWorkflow(ctx, w.ID)
	if got.Memory.Has("c") {
		t.Error("returned memory aliases store state")
	}
}

func TestWorkflowTerminalStates(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	w, _, _ := s.CreateWorkflow(ctx, "u", "g", testPlan())
	if err := s.CompleteWorkflow(ctx, w.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.FailWorkflow(ctx, w.ID); err == nil {
		t.Error("fail after complete should error")
	}
	if err := s.CompleteWorkflow(ctx, w.ID); err == nil {
		t.Error("double complete should error")
	}
	got, _ := s.GetWorkflow(ctx, w.ID)
	if got.Status != workflow.StatusCompleted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	s := NewMemStore()
	if _, err := s.GetWorkflow(context.Background(), "nope"); err != workflow.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetStep(context.Background(), "nope"); err != workflow.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStaleRunningSteps(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, steps, _ := s.CreateWorkflow(ctx, "u", "g", testPlan())

	// Fresh running step is not stale.
	stale, err := s.StaleRunningSteps(ctx, time.Hour)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale steps, got %d", len(stale))
	}

	// Backdate the running step past the lease.
	s.mu.Lock()
	old := time.Now().Add(-2 * time.Hour)
	s.steps[steps[0].ID].StartedAt = &old
	s.mu.Unlock()

	stale, _ = s.StaleRunningSteps(ctx, time.Hour)
	if len(stale) != 1 || stale[0].ID != steps[0].ID {
		t.Fatalf("expected step 0 stale, got %+v", stale)
	}
}
