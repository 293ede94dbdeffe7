package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/leadflow/internal/workflow"
)

// CreateWorkflow inserts the workflow and all its steps in one transaction.
// Step 0 starts running with started_at set; the rest start pending.
func (s *Store) CreateWorkflow(ctx context.Context, userID, goal string, plan []workflow.PlanStep) (*workflow.Workflow, []*workflow.Step, error) {
	if len(plan) == 0 {
		return nil, nil, fmt.Errorf("empty plan")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	planJSON, _ := json.Marshal(plan)
	w := &workflow.Workflow{
		UserID: userID,
		Goal:   goal,
		Plan:   plan,
		Status: workflow.StatusRunning,
		Memory: workflow.Memory{},
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO workflows (user_id, goal, plan, status, memory)
		 VALUES ($1, $2, $3, 'running', '{}') RETURNING id, created_at, updated_at`,
		userID, goal, planJSON,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("insert workflow: %w", err)
	}

	steps := make([]*workflow.Step, len(plan))
	for i, p := range plan {
		status := workflow.StepPending
		var startedAt *time.Time
		if i == 0 {
			status = workflow.StepRunning
			now := time.Now()
			startedAt = &now
		}
		inputJSON, _ := json.Marshal(p.Params)
		st := &workflow.Step{
			WorkflowID: w.ID,
			Agent:      p.Agent,
			Input:      p.Params,
			Position:   i,
			Status:     status,
			StartedAt:  startedAt,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO workflow_steps (workflow_id, agent, input, position, status, started_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			w.ID, string(p.Agent), inputJSON, i, string(status), startedAt,
		).Scan(&st.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("insert step %d: %w", i, err)
		}
		steps[i] = st
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return w, steps, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	w := &workflow.Workflow{}
	var planRaw, memRaw []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, goal, plan, status, memory, created_at, updated_at
		 FROM workflows WHERE id=$1`, id,
	).Scan(&w.ID, &w.UserID, &w.Goal, &planRaw, &w.Status, &memRaw, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	_ = json.Unmarshal(planRaw, &w.Plan)
	_ = json.Unmarshal(memRaw, &w.Memory)
	return w, nil
}

// MergeMemory shallow-merges patch into the workflow memory atomically via
// jsonb concatenation (new keys win, nothing deleted) and returns the result.
func (s *Store) MergeMemory(ctx context.Context, workflowID string, patch workflow.Memory) (workflow.Memory, error) {
	if len(patch) == 0 {
		w, err := s.GetWorkflow(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		return w.Memory, nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode memory patch: %w", err)
	}
	var memRaw []byte
	err = s.db.QueryRow(ctx,
		`UPDATE workflows SET memory = memory || $1::jsonb, updated_at = NOW()
		 WHERE id=$2 RETURNING memory`, data, workflowID,
	).Scan(&memRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("merge memory: %w", err)
	}
	var mem workflow.Memory
	_ = json.Unmarshal(memRaw, &mem)
	return mem, nil
}

// CompleteWorkflow transitions a running workflow to completed.
func (s *Store) CompleteWorkflow(ctx context.Context, id string) error {
	return s.setWorkflowStatus(ctx, id, workflow.StatusCompleted)
}

// FailWorkflow transitions a running workflow to failed.
func (s *Store) FailWorkflow(ctx context.Context, id string) error {
	return s.setWorkflowStatus(ctx, id, workflow.StatusFailed)
}

func (s *Store) setWorkflowStatus(ctx context.Context, id string, to workflow.Status) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET status=$1, updated_at=NOW() WHERE id=$2 AND status='running'`,
		string(to), id)
	if err != nil {
		return fmt.Errorf("set workflow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already terminal or missing; terminal states never reverse.
		w, err := s.GetWorkflow(ctx, id)
		if err != nil {
			return err
		}
		return workflow.Transition(w.Status, to)
	}
	return nil
}
