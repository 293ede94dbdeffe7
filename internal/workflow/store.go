package workflow

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a workflow or step does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistence for workflows and their steps. Implementations
// must make the step status updates guarded, so that a duplicate chain
// invocation observing an already-advanced step is a no-op.
type Store interface {
	// CreateWorkflow atomically inserts the workflow (running, empty memory)
	// and one step per plan entry: step 0 running with started_at set, the
	// rest pending.
	CreateWorkflow(ctx context.Context, userID, goal string, plan []PlanStep) (*Workflow, []*Step, error)

	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	GetStep(ctx context.Context, id string) (*Step, error)
	ListSteps(ctx context.Context, workflowID string) ([]*Step, error)

	// MarkStepRunning transitions a pending step to running. Returns false
	// without error if the step was not pending (idempotent re-invocation).
	MarkStepRunning(ctx context.Context, stepID string) (bool, error)

	// CompleteStep transitions a running step to completed with its output.
	CompleteStep(ctx context.Context, stepID string, output map[string]any) error

	// FailStep transitions a running step to failed with an error message.
	FailStep(ctx context.Context, stepID, msg string) error

	// NextPendingStep returns the pending step with the lowest position for
	// the workflow, or nil when none remain.
	NextPendingStep(ctx context.Context, workflowID string) (*Step, error)

	// MergeMemory shallow-merges patch into the workflow memory (new keys
	// win, nothing deleted) and returns the merged blackboard.
	MergeMemory(ctx context.Context, workflowID string, patch Memory) (Memory, error)

	CompleteWorkflow(ctx context.Context, id string) error
	FailWorkflow(ctx context.Context, id string) error

	// StaleRunningSteps returns steps that have been running longer than
	// maxAge, for the reaper.
	StaleRunningSteps(ctx context.Context, maxAge time.Duration) ([]*Step, error)
}
