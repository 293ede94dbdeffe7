package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/leadflow/internal/workflow"
)

// MemStore is an in-memory workflow store with the same guarded-transition
// semantics as the Postgres store. Used in dev mode when no DSN is
// configured, and by tests.
type MemStore struct {
	mu        sync.Mutex
	workflows map[string]*workflow.Workflow
	steps     map[string]*workflow.Step
	byWf      map[string][]string // workflow ID → step IDs in position order
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows: make(map[string]*workflow.Workflow),
		steps:     make(map[string]*workflow.Step),
		byWf:      make(map[string][]string),
	}
}

func copyWorkflow(w *workflow.Workflow) *workflow.Workflow {
	cp := *w
	cp.Memory = w.Memory.Merge(nil)
	cp.Plan = append([]workflow.PlanStep(nil), w.Plan...)
	return &cp
}

func copyStep(st *workflow.Step) *workflow.Step {
	cp := *st
	return &cp
}

// CreateWorkflow inserts the workflow and its steps; step 0 starts running.
func (s *MemStore) CreateWorkflow(ctx context.Context, userID, goal string, plan []workflow.PlanStep) (*workflow.Workflow, []*workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w := &workflow.Workflow{
		ID:        uuid.New().String(),
		UserID:    userID,
		Goal:      goal,
		Plan:      append([]workflow.PlanStep(nil), plan...),
		Status:    workflow.StatusRunning,
		Memory:    workflow.Memory{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.workflows[w.ID] = w

	steps := make([]*workflow.Step, len(plan))
	for i, p := range plan {
		st := &workflow.Step{
			ID:         uuid.New().String(),
			WorkflowID: w.ID,
			Agent:      p.Agent,
			Input:      p.Params,
			Position:   i,
			Status:     workflow.StepPending,
		}
		if i == 0 {
			st.Status = workflow.StepRunning
			started := now
			st.StartedAt = &started
		}
		s.steps[st.ID] = st
		s.byWf[w.ID] = append(s.byWf[w.ID], st.ID)
		steps[i] = copyStep(st)
	}
	return copyWorkflow(w), steps, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *MemStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return copyWorkflow(w), nil
}

// GetStep retrieves a step by ID.
func (s *MemStore) GetStep(ctx context.Context, id string) (*workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return copyStep(st), nil
}

// ListSteps returns all steps for a workflow in position order.
func (s *MemStore) ListSteps(ctx context.Context, workflowID string) ([]*workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byWf[workflowID]
	steps := make([]*workflow.Step, 0, len(ids))
	for _, id := range ids {
		steps = append(steps, copyStep(s.steps[id]))
	}
	return steps, nil
}

// MarkStepRunning transitions pending→running; false if not pending.
func (s *MemStore) MarkStepRunning(ctx context.Context, stepID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return false, workflow.ErrNotFound
	}
	if st.Status != workflow.StepPending {
		return false, nil
	}
	st.Status = workflow.StepRunning
	now := time.Now()
	st.StartedAt = &now
	return true, nil
}

// CompleteStep transitions running→completed with output.
func (s *MemStore) CompleteStep(ctx context.Context, stepID string, output map[string]any) error {
	return s.finishStep(stepID, workflow.StepCompleted, output, "")
}

// FailStep transitions running→failed with an error message.
func (s *MemStore) FailStep(ctx context.Context, stepID, msg string) error {
	return s.finishStep(stepID, workflow.StepFailed, nil, msg)
}

func (s *MemStore) finishStep(stepID string, to workflow.StepStatus, output map[string]any, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.steps[stepID]
	if !ok {
		return workflow.ErrNotFound
	}
	if err := workflow.StepTransition(st.Status, to); err != nil {
		return err
	}
	st.Status = to
	st.Output = output
	st.Error = msg
	now := time.Now()
	st.CompletedAt = &now
	return nil
}

// NextPendingStep returns the lowest-position pending step, or nil.
func (s *MemStore) NextPendingStep(ctx context.Context, workflowID string) (*workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byWf[workflowID] {
		if st := s.steps[id]; st.Status == workflow.StepPending {
			return copyStep(st), nil
		}
	}
	return nil, nil
}

// MergeMemory shallow-merges patch into the workflow memory.
func (s *MemStore) MergeMemory(ctx context.Context, workflowID string, patch workflow.Memory) (workflow.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[workflowID]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	w.Memory = w.Memory.Merge(patch)
	w.UpdatedAt = time.Now()
	return w.Memory.Merge(nil), nil
}

// CompleteWorkflow transitions running→completed.
func (s *MemStore) CompleteWorkflow(ctx context.Context, id string) error {
	return s.setStatus(id, workflow.StatusCompleted)
}

// FailWorkflow transitions running→failed.
func (s *MemStore) FailWorkflow(ctx context.Context, id string) error {
	return s.setStatus(id, workflow.StatusFailed)
}

func (s *MemStore) setStatus(id string, to workflow.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if err := workflow.Transition(w.Status, to); err != nil {
		return err
	}
	w.Status = to
	w.UpdatedAt = time.Now()
	return nil
}

// StaleRunningSteps returns steps running longer than maxAge.
func (s *MemStore) StaleRunningSteps(ctx context.Context, maxAge time.Duration) ([]*workflow.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var out []*workflow.Step
	for _, st := range s.steps {
		if st.Status == workflow.StepRunning && st.StartedAt != nil && st.StartedAt.Before(cutoff) {
			out = append(out, copyStep(st))
		}
	}
	return out, nil
}
