package workflow

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// validTransitions defines allowed workflow state transitions.
// A run is terminal once completed or failed; it never reverses.
var validTransitions = map[Status][]Status{
	StatusRunning: {StatusCompleted, StatusFailed},
}

// Transition validates and returns nil if from→to is a legal transition.
func Transition(from, to Status) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("no transitions from %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %q → %q", from, to)
}

// PlanStep is one entry of a workflow plan: which agent runs with which params.
// The plan is immutable once the workflow is created.
type PlanStep struct {
	Agent  AgentKind      `json:"agent"`
	Params map[string]any `json:"params"`
}

// Workflow is a single orchestrated run: a user goal, the planned agent
// sequence, and the memory blackboard the steps accumulate into.
type Workflow struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Goal      string     `json:"goal"`
	Plan      []PlanStep `json:"plan"`
	Status    Status     `json:"status"`
	Memory    Memory     `json:"memory"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ChainMessage is the payload passed from one step executor to the next.
// Memory is the workflow's accumulated blackboard at dispatch time, carried
// by value so the executor can read upstream results without a second fetch.
type ChainMessage struct {
	WorkflowID string         `json:"workflow_id"`
	StepID     string         `json:"step_id"`
	UserID     string         `json:"user_id"`
	Agent      AgentKind      `json:"agent"`
	Params     map[string]any `json:"params"`
	Memory     Memory         `json:"memory"`
}
