package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/leadflow/internal/leadgen"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// ScoutAction finds leads for a niche/location and seeds the blackboard
// with scout_results for downstream steps.
type ScoutAction struct {
	source  leadgen.Source
	backoff time.Duration
	logger  *zap.Logger
}

// NewScoutAction creates the scout executor action.
func NewScoutAction(source leadgen.Source, backoff time.Duration, logger *zap.Logger) *ScoutAction {
	if backoff == 0 {
		backoff = 2 * time.Second
	}
	return &ScoutAction{source: source, backoff: backoff, logger: logger}
}

func (a *ScoutAction) Kind() workflow.AgentKind { return workflow.KindScout }

// Run searches for leads. A rate-limited provider gets one brief backoff and
// a reduced retry rather than failing the step.
func (a *ScoutAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	q := leadgen.Query{
		Niche:    stringParam(in.Params, "niche", "local business"),
		Location: stringParam(in.Params, "location", "United States"),
		Limit:    intParam(in.Params, "count", 25),
	}

	leads, err := a.source.Search(ctx, q)
	if errors.Is(err, leadgen.ErrRateLimited) {
		a.logger.Warn("lead search rate limited, backing off",
			zap.Duration("backoff", a.backoff))
		select {
		case <-time.After(a.backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		q.Limit = q.Limit / 2
		if q.Limit < 1 {
			q.Limit = 1
		}
		leads, err = a.source.Search(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("lead search: %w", err)
	}

	results := workflow.ScoutResults{
		LeadsFound: len(leads),
		Niche:      q.Niche,
		Location:   q.Location,
		Leads:      leads,
	}
	output := map[string]any{
		"leads_found": results.LeadsFound,
		"niche":       results.Niche,
		"location":    results.Location,
	}
	return &ActionResult{
		Output:      output,
		MemoryPatch: workflow.Memory{workflow.KeyScoutResults: results},
	}, nil
}
