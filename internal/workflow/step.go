package workflow

import (
	"fmt"
	"time"
)

// StepStatus represents the lifecycle state of a single workflow step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one executable unit of a workflow. Steps are created together at
// plan time and advanced strictly in ascending position order; at most one
// step per workflow is running at any time. Steps are never deleted, forming
// an immutable audit trail of the run.
type Step struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Agent       AgentKind      `json:"agent"`
	Input       map[string]any `json:"input"`
	Position    int            `json:"position"`
	Status      StepStatus     `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// stepTransitions defines allowed step state transitions.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepRunning},
	StepRunning: {StepCompleted, StepFailed},
}

// StepTransition validates and returns nil if from→to is a legal transition.
func StepTransition(from, to StepStatus) error {
	allowed, ok := stepTransitions[from]
	if !ok {
		return fmt.Errorf("no transitions from %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid step transition %q → %q", from, to)
}
