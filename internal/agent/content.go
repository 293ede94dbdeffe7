package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/leadflow/internal/provider"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// chatRouter is the slice of provider.Router the LLM-backed actions need.
type chatRouter interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// imageRouter is the slice of provider.Router the image generator needs.
type imageRouter interface {
	Image(ctx context.Context, purpose, prompt string) (string, error)
}

// ContentWriterAction drafts marketing copy for a topic via the LLM.
type ContentWriterAction struct {
	router chatRouter
	logger *zap.Logger
}

// NewContentWriterAction creates the content writer executor action.
func NewContentWriterAction(router chatRouter, logger *zap.Logger) *ContentWriterAction {
	return &ContentWriterAction{router: router, logger: logger}
}

func (a *ContentWriterAction) Kind() workflow.AgentKind { return workflow.KindContentWriter }

func (a *ContentWriterAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	topic := stringParam(in.Params, "topic", "our product")
	tone := stringParam(in.Params, "tone", "friendly")

	resp, err := a.router.Route(ctx, string(a.Kind()), &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: "You write concise marketing copy. Respond with the copy only."},
			{Role: "user", Content: fmt.Sprintf("Write %s marketing copy about: %s", tone, topic)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("content generation: %w", err)
	}

	output := map[string]any{"topic": topic, "content": resp.Content}
	return &ActionResult{
		Output:      output,
		MemoryPatch: workflow.Memory{workflow.KeyContentOutput: output},
	}, nil
}

// CarouselAction builds a social carousel: slide texts plus one image prompt
// per slide, written under carousel_output so an image generation step can
// chain off it.
type CarouselAction struct {
	router chatRouter
	logger *zap.Logger
}

// NewCarouselAction creates the carousel generator executor action.
func NewCarouselAction(router chatRouter, logger *zap.Logger) *CarouselAction {
	return &CarouselAction{router: router, logger: logger}
}

func (a *CarouselAction) Kind() workflow.AgentKind { return workflow.KindCarouselGenerator }

func (a *CarouselAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	topic := stringParam(in.Params, "topic", "our product")
	slides := intParam(in.Params, "slides", 5)

	resp, err := a.router.Route(ctx, string(a.Kind()), &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "system", Content: `You design social media carousels. Respond with ONLY a JSON object {"slides": [string], "image_prompts": [string]} with one image prompt per slide.`},
			{Role: "user", Content: fmt.Sprintf("Design a %d-slide carousel about: %s", slides, topic)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("carousel generation: %w", err)
	}

	out := workflow.CarouselOutput{Topic: topic}
	if err := decodeJSONObject(resp.Content, &out); err != nil || len(out.Slides) == 0 {
		return nil, fmt.Errorf("carousel output unparsable")
	}

	return &ActionResult{
		Output: map[string]any{
			"topic":  topic,
			"slides": len(out.Slides),
		},
		MemoryPatch: workflow.Memory{workflow.KeyCarouselOutput: out},
	}, nil
}

// ImageAction renders images. It prefers image prompts left in memory by a
// carousel step over its own standalone prompt param.
type ImageAction struct {
	router imageRouter
	logger *zap.Logger
}

// NewImageAction creates the image generator executor action.
func NewImageAction(router imageRouter, logger *zap.Logger) *ImageAction {
	return &ImageAction{router: router, logger: logger}
}

func (a *ImageAction) Kind() workflow.AgentKind { return workflow.KindImageGenerator }

func (a *ImageAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	prompts := a.prompts(in)
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no image prompts: set params.prompt or run a carousel step first")
	}

	// Per-item isolation, same as batch outreach: one bad prompt does not
	// abort the rest.
	result := workflow.GeneratedImages{}
	var failed int
	for _, prompt := range prompts {
		url, err := a.router.Image(ctx, string(a.Kind()), prompt)
		if err != nil {
			failed++
			a.logger.Warn("image generation failed", zap.Error(err))
			continue
		}
		result.URLs = append(result.URLs, url)
	}
	result.Count = len(result.URLs)
	if result.Count == 0 {
		return nil, fmt.Errorf("all %d image generations failed", len(prompts))
	}

	return &ActionResult{
		Output: map[string]any{
			"generated": result.Count,
			"failed":    failed,
		},
		MemoryPatch: workflow.Memory{workflow.KeyGeneratedImages: result},
	}, nil
}

func (a *ImageAction) prompts(in ActionInput) []string {
	if in.Memory.Has(workflow.KeyCarouselOutput) {
		var carousel workflow.CarouselOutput
		if err := in.Memory.Decode(workflow.KeyCarouselOutput, &carousel); err == nil && len(carousel.ImagePrompts) > 0 {
			return carousel.ImagePrompts
		}
	}
	if p := stringParam(in.Params, "prompt", ""); p != "" {
		count := intParam(in.Params, "count", 1)
		prompts := make([]string, count)
		for i := range prompts {
			prompts[i] = p
		}
		return prompts
	}
	return nil
}

// decodeJSONObject extracts the first brace-delimited JSON object from raw
// model output, tolerating surrounding prose.
func decodeJSONObject(raw string, v any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in output")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), v)
}
