package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// Reaper fails steps whose lease has expired: a step still running past the
// lease means its executor died or hung, and without intervention the
// workflow would sit at running forever. The reaper makes that terminal
// deterministically. Disabled by default to preserve manual-retry workflows.
type Reaper struct {
	store    workflow.Store
	interval time.Duration
	lease    time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// NewReaper creates a reaper scanning every interval for steps running
// longer than lease.
func NewReaper(store workflow.Store, interval, lease time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lease <= 0 {
		lease = 15 * time.Minute
	}
	return &Reaper{store: store, interval: interval, lease: lease, logger: logger}
}

// Start launches the scan loop.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
	r.logger.Info("reaper started",
		zap.Duration("interval", r.interval), zap.Duration("lease", r.lease))
}

// Stop halts the scan loop.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Sweep fails every step whose lease expired, and its workflow with it.
// Returns the number of steps reaped.
func (r *Reaper) Sweep(ctx context.Context) int {
	stale, err := r.store.StaleRunningSteps(ctx, r.lease)
	if err != nil {
		r.logger.Error("stale step scan failed", zap.Error(err))
		return 0
	}

	reaped := 0
	for _, st := range stale {
		if err := r.store.FailStep(ctx, st.ID, "step lease expired"); err != nil {
			r.logger.Error("reap step failed", zap.String("step", st.ID), zap.Error(err))
			continue
		}
		if err := r.store.FailWorkflow(ctx, st.WorkflowID); err != nil {
			r.logger.Error("reap workflow failed", zap.String("workflow", st.WorkflowID), zap.Error(err))
		}
		r.logger.Warn("reaped stalled step",
			zap.String("workflow", st.WorkflowID),
			zap.String("step", st.ID),
			zap.String("agent", string(st.Agent)))
		reaped++
	}
	return reaped
}
