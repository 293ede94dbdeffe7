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

const stepColumns = `id, workflow_id, agent, input, position, status, output, error, started_at, completed_at`

func scanStep(row pgx.Row) (*workflow.Step, error) {
	st := &workflow.Step{}
	var agent, status string
	var inputRaw []byte
	var outputRaw []byte
	err := row.Scan(&st.ID, &st.WorkflowID, &agent, &inputRaw, &st.Position,
		&status, &outputRaw, &st.Error, &st.StartedAt, &st.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}
	st.Agent = workflow.AgentKind(agent)
	st.Status = workflow.StepStatus(status)
	_ = json.Unmarshal(inputRaw, &st.Input)
	if len(outputRaw) > 0 {
		_ = json.Unmarshal(outputRaw, &st.Output)
	}
	return st, nil
}

// GetStep retrieves a step by ID.
func (s *Store) GetStep(ctx context.Context, id string) (*workflow.Step, error) {
	return scanStep(s.db.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE id=$1`, id))
}

// ListSteps returns all steps for a workflow in position order.
func (s *Store) ListSteps(ctx context.Context, workflowID string) ([]*workflow.Step, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps WHERE workflow_id=$1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*workflow.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// MarkStepRunning transitions a pending step to running. The WHERE guard
// makes duplicate invocations a no-op: the second caller sees false.
func (s *Store) MarkStepRunning(ctx context.Context, stepID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_steps SET status='running', started_at=NOW()
		 WHERE id=$1 AND status='pending'`, stepID)
	if err != nil {
		return false, fmt.Errorf("mark step running: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteStep transitions a running step to completed with its output.
func (s *Store) CompleteStep(ctx context.Context, stepID string, output map[string]any) error {
	outputJSON, _ := json.Marshal(output)
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_steps SET status='completed', output=$1, completed_at=NOW()
		 WHERE id=$2 AND status='running'`, outputJSON, stepID)
	if err != nil {
		return fmt.Errorf("complete step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete step %s: not running", stepID)
	}
	return nil
}

// FailStep transitions a running step to failed with an error message.
func (s *Store) FailStep(ctx context.Context, stepID, msg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflow_steps SET status='failed', error=$1, completed_at=NOW()
		 WHERE id=$2 AND status='running'`, msg, stepID)
	if err != nil {
		return fmt.Errorf("fail step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail step %s: not running", stepID)
	}
	return nil
}

// NextPendingStep returns the lowest-position pending step, or nil when the
// workflow has no pending tail.
func (s *Store) NextPendingStep(ctx context.Context, workflowID string) (*workflow.Step, error) {
	st, err := scanStep(s.db.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps
		 WHERE workflow_id=$1 AND status='pending'
		 ORDER BY position LIMIT 1`, workflowID))
	if errors.Is(err, workflow.ErrNotFound) {
		return nil, nil
	}
	return st, err
}

// StaleRunningSteps returns steps running longer than maxAge, oldest first.
func (s *Store) StaleRunningSteps(ctx context.Context, maxAge time.Duration) ([]*workflow.Step, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+stepColumns+` FROM workflow_steps
		 WHERE status='running' AND started_at < NOW() - $1::interval
		 ORDER BY started_at`, fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("stale steps: %w", err)
	}
	defer rows.Close()

	var steps []*workflow.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
