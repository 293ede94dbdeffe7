// Package dispatch delivers chain messages between step executors. Three
// transports share one contract: a synchronous in-process call (dev, tests),
// a fire-and-forget HTTP call to the executor endpoint (single node), and a
// durable Redis Streams queue consumed by a worker pool (default).
package dispatch

import (
	"context"

	"github.com/nidhogg/leadflow/internal/workflow"
)

// Executor runs one step for a chain message. The harness implements it.
type Executor interface {
	ExecuteStep(ctx context.Context, msg *workflow.ChainMessage) (map[string]any, error)
}

// Sync executes the next step inline in the caller's goroutine. Chain
// failures surface directly, which is exactly what tests want.
type Sync struct {
	exec Executor
}

// NewSync creates a synchronous dispatcher.
func NewSync(exec Executor) *Sync {
	return &Sync{exec: exec}
}

// Dispatch runs the step immediately.
func (s *Sync) Dispatch(ctx context.Context, msg *workflow.ChainMessage) error {
	_, err := s.exec.ExecuteStep(ctx, msg)
	return err
}
