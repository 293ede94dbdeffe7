package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// Dispatcher delivers a chain message to the next step's executor.
// Delivery is at-least-once at best; the harness treats delivery failure as
// an operational signal, never as a reason to unwind committed step state.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *workflow.ChainMessage) error
}

// Notifier is told when a workflow reaches a terminal state.
type Notifier interface {
	WorkflowCompleted(ctx context.Context, w *workflow.Workflow)
	WorkflowFailed(ctx context.Context, w *workflow.Workflow, reason string)
}

// FailMode controls what happens to a workflow when a step fails.
type FailMode string

const (
	// FailModeStall leaves the workflow running with a failed step, keeping
	// partial results usable and allowing manual retry.
	FailModeStall FailMode = "stall"
	// FailModeFail marks the workflow failed as soon as a step fails.
	FailModeFail FailMode = "fail"
)

// HarnessConfig tunes the shared executor behavior.
type HarnessConfig struct {
	StepTimeout time.Duration
	FailMode    FailMode
}

// Harness is the generic step executor: every agent kind shares this
// lifecycle, and only the registered Action differs per kind.
type Harness struct {
	store      workflow.Store
	registry   *Registry
	dispatcher Dispatcher
	notifier   Notifier
	cfg        HarnessConfig
	logger     *zap.Logger
}

// NewHarness creates the shared executor harness.
func NewHarness(store workflow.Store, registry *Registry, dispatcher Dispatcher, notifier Notifier, cfg HarnessConfig, logger *zap.Logger) *Harness {
	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = 5 * time.Minute
	}
	if cfg.FailMode == "" {
		cfg.FailMode = FailModeStall
	}
	return &Harness{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// SetDispatcher swaps the dispatcher; used when the queue consumer and the
// harness are wired to each other at startup.
func (h *Harness) SetDispatcher(d Dispatcher) { h.dispatcher = d }

// ExecuteStep runs one step end to end: mark running, run the action under
// the step timeout, commit output and memory, then advance the chain or
// finish the workflow. Re-invocation of a completed step is a no-op
// returning the stored output, so duplicate chain deliveries are safe.
func (h *Harness) ExecuteStep(ctx context.Context, msg *workflow.ChainMessage) (map[string]any, error) {
	step, err := h.store.GetStep(ctx, msg.StepID)
	if err != nil {
		return nil, fmt.Errorf("load step: %w", err)
	}
	if step.WorkflowID != msg.WorkflowID {
		return nil, fmt.Errorf("step %s does not belong to workflow %s", msg.StepID, msg.WorkflowID)
	}

	switch step.Status {
	case workflow.StepCompleted:
		h.logger.Info("step already completed, skipping",
			zap.String("step", step.ID), zap.String("agent", string(step.Agent)))
		return step.Output, nil
	case workflow.StepFailed:
		return nil, fmt.Errorf("step already failed: %s", step.Error)
	case workflow.StepPending:
		// Direct invocation without the chain marking it first. Enforce the
		// ordering invariant before taking the step.
		if err := h.checkPredecessors(ctx, step); err != nil {
			return nil, err
		}
		if _, err := h.store.MarkStepRunning(ctx, step.ID); err != nil {
			return nil, fmt.Errorf("mark running: %w", err)
		}
	case workflow.StepRunning:
		// Normal path: the previous executor (or the orchestrator) already
		// marked it running before dispatching.
	}

	action, ok := h.registry.Get(step.Agent)
	if !ok {
		reason := fmt.Sprintf("no executor registered for agent %s", step.Agent)
		h.failStep(ctx, step, reason)
		return nil, fmt.Errorf("%s", reason)
	}

	mem := msg.Memory
	if mem == nil {
		w, err := h.store.GetWorkflow(ctx, step.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("load workflow: %w", err)
		}
		mem = w.Memory
	}

	actCtx, cancel := context.WithTimeout(ctx, h.cfg.StepTimeout)
	defer cancel()

	result, err := action.Run(actCtx, ActionInput{
		UserID: msg.UserID,
		Params: step.Input,
		Memory: mem,
	})
	if err != nil {
		h.logger.Error("step action failed",
			zap.String("step", step.ID),
			zap.String("agent", string(step.Agent)),
			zap.Error(err))
		h.failStep(ctx, step, err.Error())
		return nil, fmt.Errorf("step action: %w", err)
	}

	if err := h.store.CompleteStep(ctx, step.ID, result.Output); err != nil {
		return nil, fmt.Errorf("complete step: %w", err)
	}

	merged, err := h.store.MergeMemory(ctx, step.WorkflowID, result.MemoryPatch)
	if err != nil {
		// The step's own work is committed; a memory write failure stalls
		// the chain but never rolls the step back.
		h.logger.Error("memory merge failed", zap.String("workflow", step.WorkflowID), zap.Error(err))
		return result.Output, nil
	}

	h.logger.Info("step completed",
		zap.String("workflow", step.WorkflowID),
		zap.String("step", step.ID),
		zap.String("agent", string(step.Agent)),
		zap.Int("position", step.Position))

	h.advance(ctx, step, msg.UserID, merged)
	return result.Output, nil
}

// checkPredecessors verifies every earlier step is completed.
func (h *Harness) checkPredecessors(ctx context.Context, step *workflow.Step) error {
	steps, err := h.store.ListSteps(ctx, step.WorkflowID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	for _, s := range steps {
		if s.Position < step.Position && s.Status != workflow.StepCompleted {
			return fmt.Errorf("step %d is %s; step %d may not run yet",
				s.Position, s.Status, step.Position)
		}
	}
	return nil
}

// advance hands the workflow to the next pending step, or finishes it.
func (h *Harness) advance(ctx context.Context, step *workflow.Step, userID string, mem workflow.Memory) {
	next, err := h.store.NextPendingStep(ctx, step.WorkflowID)
	if err != nil {
		h.logger.Error("next step lookup failed", zap.String("workflow", step.WorkflowID), zap.Error(err))
		return
	}

	if next == nil {
		if err := h.store.CompleteWorkflow(ctx, step.WorkflowID); err != nil {
			h.logger.Error("complete workflow failed", zap.String("workflow", step.WorkflowID), zap.Error(err))
			return
		}
		h.logger.Info("workflow completed", zap.String("workflow", step.WorkflowID))
		if h.notifier != nil {
			if w, err := h.store.GetWorkflow(ctx, step.WorkflowID); err == nil {
				h.notifier.WorkflowCompleted(ctx, w)
			}
		}
		return
	}

	if _, err := h.store.MarkStepRunning(ctx, next.ID); err != nil {
		h.logger.Error("mark next step running failed", zap.String("step", next.ID), zap.Error(err))
		return
	}

	chain := &workflow.ChainMessage{
		WorkflowID: step.WorkflowID,
		StepID:     next.ID,
		UserID:     userID,
		Agent:      next.Agent,
		Params:     next.Input,
		Memory:     mem,
	}
	if err := h.dispatcher.Dispatch(ctx, chain); err != nil {
		// Fire-and-forget semantics: the current step stays completed and
		// the workflow is left stalled, which is diagnosable from state.
		h.logger.Error("chain dispatch failed, workflow stalled",
			zap.String("workflow", step.WorkflowID),
			zap.String("next_step", next.ID),
			zap.Error(err))
	}
}

// failStep records a step failure and applies the configured fail mode.
func (h *Harness) failStep(ctx context.Context, step *workflow.Step, msg string) {
	if err := h.store.FailStep(ctx, step.ID, msg); err != nil {
		h.logger.Error("fail step failed", zap.String("step", step.ID), zap.Error(err))
	}
	if h.cfg.FailMode != FailModeFail {
		return
	}
	if err := h.store.FailWorkflow(ctx, step.WorkflowID); err != nil {
		h.logger.Error("fail workflow failed", zap.String("workflow", step.WorkflowID), zap.Error(err))
		return
	}
	if h.notifier != nil {
		if w, err := h.store.GetWorkflow(ctx, step.WorkflowID); err == nil {
			h.notifier.WorkflowFailed(ctx, w, msg)
		}
	}
}
