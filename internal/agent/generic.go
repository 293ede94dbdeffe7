package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/leadflow/internal/provider"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// GenericLLMAction covers the agent kinds whose work is a single prompted
// LLM call: researcher, booker, media buyer, and the rest of the long tail.
// It collapses what would otherwise be one near-identical handler per kind.
type GenericLLMAction struct {
	kind   workflow.AgentKind
	prompt string
	router chatRouter
	logger *zap.Logger
}

// genericPrompts maps the long-tail kinds to their system prompts.
var genericPrompts = map[workflow.AgentKind]string{
	workflow.KindBooker:           "You draft meeting booking messages for leads that replied. Summarize the proposed bookings.",
	workflow.KindResearcher:       "You research topics and companies in depth. Summarize key findings as bullet points.",
	workflow.KindMediaBuyer:       "You draft paid ad campaigns. Propose targeting, creatives, and budget split.",
	workflow.KindWebsiteAuditor:   "You audit websites for conversion issues. List the top issues and fixes.",
	workflow.KindSlideGenerator:   "You outline slide decks. Produce a titled outline, one line per slide.",
	workflow.KindBrowserOperator:  "You plan scripted browsing tasks. Describe the steps taken and their outcome.",
	workflow.KindSendLink:         "You compose a short message delivering a link to a contact.",
	workflow.KindDream100Discover: "You identify dream-100 target accounts for a niche. List accounts with a one-line rationale.",
	workflow.KindDream100Outreach: "You draft personalized outreach for dream-100 accounts.",
}

// NewGenericLLMAction creates a generic action for one kind.
func NewGenericLLMAction(kind workflow.AgentKind, router chatRouter, logger *zap.Logger) (*GenericLLMAction, error) {
	prompt, ok := genericPrompts[kind]
	if !ok {
		return nil, fmt.Errorf("kind %s has no generic prompt; register a dedicated action", kind)
	}
	return &GenericLLMAction{kind: kind, prompt: prompt, router: router, logger: logger}, nil
}

// RegisterGenericActions registers a generic action for every kind listed in
// genericPrompts that the registry does not already cover.
func RegisterGenericActions(reg *Registry, router chatRouter, logger *zap.Logger) {
	for kind := range genericPrompts {
		if _, ok := reg.Get(kind); ok {
			continue
		}
		a, err := NewGenericLLMAction(kind, router, logger)
		if err != nil {
			continue
		}
		reg.Register(a)
	}
}

func (a *GenericLLMAction) Kind() workflow.AgentKind { return a.kind }

// Run issues one prompted call, passing the step params and relevant memory
// as context, and writes the reply under "<kind>_output".
func (a *GenericLLMAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	paramsJSON, _ := json.Marshal(in.Params)
	user := fmt.Sprintf("Task parameters: %s", paramsJSON)
	if in.Memory.Has(workflow.KeyQualifierResults) {
		if raw, err := json.Marshal(in.Memory[workflow.KeyQualifierResults]); err == nil {
			user += fmt.Sprintf("\nQualified leads: %s", raw)
		}
	}

	resp, err := a.router.Route(ctx, string(a.kind), &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: a.prompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s generation: %w", a.kind, err)
	}
	if resp.Content == "" {
		return nil, fmt.Errorf("%s: empty model output", a.kind)
	}

	output := map[string]any{"summary": resp.Content}
	return &ActionResult{
		Output:      output,
		MemoryPatch: workflow.Memory{workflow.OutputKey(a.kind): output},
	}, nil
}
