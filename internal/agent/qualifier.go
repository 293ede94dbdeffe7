package agent

import (
	"context"
	"fmt"

	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// QualifierAction scores the leads a previous scout step found and keeps
// those above the configured threshold.
type QualifierAction struct {
	logger *zap.Logger
}

// NewQualifierAction creates the qualifier executor action.
func NewQualifierAction(logger *zap.Logger) *QualifierAction {
	return &QualifierAction{logger: logger}
}

func (a *QualifierAction) Kind() workflow.AgentKind { return workflow.KindQualifier }

// Run reads scout_results from memory, scores each lead, and writes
// qualifier_results back. It requires an upstream scout step.
func (a *QualifierAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	var scout workflow.ScoutResults
	if err := in.Memory.Decode(workflow.KeyScoutResults, &scout); err != nil {
		return nil, fmt.Errorf("qualifier needs scout results: %w", err)
	}

	minScore := intParam(in.Params, "min_score", 60)

	var qualified []workflow.Lead
	for _, lead := range scout.Leads {
		score := lead.Score
		if score == 0 {
			score = scoreLead(lead)
		}
		if score >= minScore {
			lead.Score = score
			qualified = append(qualified, lead)
		}
	}

	results := workflow.QualifierResults{
		Qualified: len(qualified),
		MinScore:  minScore,
		Leads:     qualified,
	}
	a.logger.Info("leads qualified",
		zap.Int("scouted", scout.LeadsFound),
		zap.Int("qualified", results.Qualified),
		zap.Int("min_score", minScore))

	return &ActionResult{
		Output: map[string]any{
			"qualified": results.Qualified,
			"min_score": minScore,
		},
		MemoryPatch: workflow.Memory{workflow.KeyQualifierResults: results},
	}, nil
}

// scoreLead assigns a contactability score when the source provided none.
// Reachable contact channels dominate; a website and location round it out.
func scoreLead(lead workflow.Lead) int {
	score := 20
	if lead.Email != "" {
		score += 30
	}
	if lead.Phone != "" {
		score += 25
	}
	if lead.Website != "" {
		score += 15
	}
	if lead.Location != "" {
		score += 10
	}
	return score
}
