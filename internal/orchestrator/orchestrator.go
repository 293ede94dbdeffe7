// Package orchestrator creates workflow runs from user goals and kicks off
// their first step. Everything after that is carried by the step executors
// chaining to each other.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/nidhogg/leadflow/internal/agent"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// Planner turns a goal into an ordered agent plan. It never fails; planning
// errors degrade to a default plan inside the planner.
type Planner interface {
	Plan(ctx context.Context, goal string) []workflow.PlanStep
}

// Orchestrator wires the planner, store, and dispatcher together.
type Orchestrator struct {
	planner    Planner
	store      workflow.Store
	dispatcher agent.Dispatcher
	logger     *zap.Logger
}

// New creates an Orchestrator.
func New(planner Planner, store workflow.Store, dispatcher agent.Dispatcher, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{planner: planner, store: store, dispatcher: dispatcher, logger: logger}
}

// Start plans a goal, persists the workflow with all its steps, and
// dispatches step 0. Returns the created workflow and its step count.
func (o *Orchestrator) Start(ctx context.Context, userID, goal string) (*workflow.Workflow, int, error) {
	plan := o.planner.Plan(ctx, goal)

	w, steps, err := o.store.CreateWorkflow(ctx, userID, goal, plan)
	if err != nil {
		return nil, 0, fmt.Errorf("create workflow: %w", err)
	}

	o.logger.Info("workflow created",
		zap.String("workflow", w.ID),
		zap.String("user", userID),
		zap.Int("steps", len(steps)))

	first := steps[0]
	msg := &workflow.ChainMessage{
		WorkflowID: w.ID,
		StepID:     first.ID,
		UserID:     userID,
		Agent:      first.Agent,
		Params:     first.Input,
		Memory:     workflow.Memory{},
	}
	if err := o.dispatcher.Dispatch(ctx, msg); err != nil {
		// The run is persisted; a failed kickoff leaves it stalled at step 0,
		// the same observable condition as any other chain delivery failure.
		o.logger.Error("first step dispatch failed, workflow stalled",
			zap.String("workflow", w.ID), zap.Error(err))
	}
	return w, len(steps), nil
}
