package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/leadflow/internal/provider"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// chatRouter is the slice of provider.Router the planner needs.
type chatRouter interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Planner turns a free-text goal into an ordered agent plan via one LLM
// call. It never fails: any model error or unparsable reply yields the
// fixed default plan, so the caller always gets something actionable.
type Planner struct {
	router chatRouter
	model  string
	logger *zap.Logger
}

// New creates a Planner routing through the given provider router.
func New(router chatRouter, model string, logger *zap.Logger) *Planner {
	return &Planner{router: router, model: model, logger: logger}
}

// DefaultPlan is the fallback when planning fails: scout then qualify.
func DefaultPlan() []workflow.PlanStep {
	return []workflow.PlanStep{
		{Agent: workflow.KindScout, Params: map[string]any{
			"niche": "local business", "location": "United States", "count": 25,
		}},
		{Agent: workflow.KindQualifier, Params: map[string]any{"min_score": 60}},
	}
}

// Plan generates the step sequence for a goal. A single model call, no
// retries; the default plan is the retry of last resort.
func (p *Planner) Plan(ctx context.Context, goal string) []workflow.PlanStep {
	resp, err := p.router.Route(ctx, "planner", &provider.ChatRequest{
		Model: p.model,
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: goal},
		},
		Temperature: 0.2,
	})
	if err != nil {
		p.logger.Warn("planner model call failed, using default plan", zap.Error(err))
		return DefaultPlan()
	}

	steps, err := parsePlan(resp.Content)
	if err != nil {
		p.logger.Warn("planner output unparsable, using default plan",
			zap.Error(err), zap.String("raw", truncate(resp.Content, 200)))
		return DefaultPlan()
	}
	if len(steps) == 0 {
		// An empty plan is never valid; run at least a scout.
		p.logger.Warn("planner returned empty plan, substituting scout")
		return DefaultPlan()[:1]
	}
	return steps
}

// systemPrompt enumerates the agent catalog for the model.
func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a workflow planner for a marketing automation system. ")
	b.WriteString("Given a user goal, respond with ONLY a JSON array of steps, each ")
	b.WriteString(`{"agent": "<kind>", "params": {...}}. Available agents:` + "\n")
	for _, e := range workflow.Catalog {
		fmt.Fprintf(&b, "- %s: %s, params %s\n", e.Kind, e.Description, e.ParamHint)
	}
	b.WriteString("Order steps so each can use the previous step's results. No prose.")
	return b.String()
}

// parsePlan extracts the first bracket-delimited JSON array from raw model
// output, tolerating prose or markdown around it, and validates agent kinds.
func parsePlan(raw string) ([]workflow.PlanStep, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var entries []struct {
		Agent  string         `json:"agent"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	steps := make([]workflow.PlanStep, 0, len(entries))
	for _, e := range entries {
		kind, err := workflow.ParseKind(e.Agent)
		if err != nil {
			// Skip hallucinated agents rather than failing the whole plan.
			continue
		}
		params := e.Params
		if params == nil {
			params = map[string]any{}
		}
		steps = append(steps, workflow.PlanStep{Agent: kind, Params: params})
	}
	if len(entries) > 0 && len(steps) == 0 {
		return nil, fmt.Errorf("no valid agents in plan")
	}
	return steps, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
