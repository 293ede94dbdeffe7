package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nidhogg/leadflow/internal/leadgen"
	"github.com/nidhogg/leadflow/internal/messaging"
	"github.com/nidhogg/leadflow/internal/provider"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// fakeSource serves canned leads, optionally rate limiting the first call.
type fakeSource struct {
	leads         []workflow.Lead
	rateLimitOnce bool
	queries       []leadgen.Query
}

func (f *fakeSource) Search(ctx context.Context, q leadgen.Query) ([]workflow.Lead, error) {
	f.queries = append(f.queries, q)
	if f.rateLimitOnce {
		f.rateLimitOnce = false
		return nil, leadgen.ErrRateLimited
	}
	if q.Limit < len(f.leads) {
		return f.leads[:q.Limit], nil
	}
	return f.leads, nil
}

// fakeSender records sends; failTo addresses fail, rate limiting once if set.
type fakeSender struct {
	sent          []messaging.Message
	failTo        map[string]bool
	rateLimitOnce bool
}

func (f *fakeSender) Send(ctx context.Context, msg messaging.Message) (string, error) {
	if f.rateLimitOnce {
		f.rateLimitOnce = false
		return "", messaging.ErrRateLimited
	}
	if f.failTo[msg.To] {
		return "", errors.New("mailbox full")
	}
	f.sent = append(f.sent, msg)
	return "msg-" + msg.To, nil
}

// fakeChat returns canned chat content.
type fakeChat struct {
	content string
	err     error
}

func (f *fakeChat) Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{Content: f.content}, nil
}

// fakeImage renders fake URLs, failing for prompts in failFor.
type fakeImage struct {
	failFor map[string]bool
	calls   int
}

func (f *fakeImage) Image(ctx context.Context, purpose, prompt string) (string, error) {
	f.calls++
	if f.failFor[prompt] {
		return "", errors.New("content policy")
	}
	return fmt.Sprintf("https://img.test/%d.png", f.calls), nil
}

func sampleLeads() []workflow.Lead {
	return []workflow.Lead{
		{Name: "Ann", Company: "Ann Fitness", Email: "ann@x.com", Phone: "+1-555-0101", Website: "annfit.com", Location: "Austin"},
		{Name: "Bob", Company: "Bob Gym", Email: "bob@x.com", Location: "Austin"},
		{Name: "Cy", Phone: "+1-555-0103"},
		{Name: "Dee", Email: "dee@x.com", Phone: "+1-555-0104", Website: "dee.io"},
		{Name: "Eli"},
	}
}

// --- Scout ---

func TestScoutRunWritesResults(t *testing.T) {
	src := &fakeSource{leads: sampleLeads()}
	a := NewScoutAction(src, time.Millisecond, zap.NewNop())

	res, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"niche": "gyms", "location": "Austin", "count": float64(10)},
		Memory: workflow.Memory{},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output["leads_found"] != 5 {
		t.Errorf("leads_found = %v", res.Output["leads_found"])
	}

	var sr workflow.ScoutResults
	if err := res.MemoryPatch.Decode(workflow.KeyScoutResults, &sr); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if sr.Niche != "gyms" || len(sr.Leads) != 5 {
		t.Errorf("unexpected results: %+v", sr)
	}
	if src.queries[0].Limit != 10 {
		t.Errorf("limit = %d", src.queries[0].Limit)
	}
}

func TestScoutBacksOffOnRateLimit(t *testing.T) {
	src := &fakeSource{leads: sampleLeads(), rateLimitOnce: true}
	a := NewScoutAction(src, time.Millisecond, zap.NewNop())

	res, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"count": float64(10)},
		Memory: workflow.Memory{},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(src.queries) != 2 {
		t.Fatalf("expected 2 search calls, got %d", len(src.queries))
	}
	// Retry degrades: halved limit.
	if src.queries[1].Limit != 5 {
		t.Errorf("retry limit = %d, want 5", src.queries[1].Limit)
	}
	if res.Output["leads_found"] != 5 {
		t.Errorf("leads_found = %v", res.Output["leads_found"])
	}
}

// --- Qualifier ---

func TestQualifierScoresAndFilters(t *testing.T) {
	a := NewQualifierAction(zap.NewNop())
	mem := workflow.Memory{
		workflow.KeyScoutResults: workflow.ScoutResults{
			LeadsFound: 5,
			Leads:      sampleLeads(),
		},
	}

	res, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"min_score": float64(60)},
		Memory: mem,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var qr workflow.QualifierResults
	if err := res.MemoryPatch.Decode(workflow.KeyQualifierResults, &qr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Ann 100, Bob 60, Cy 45, Dee 90, Eli 20 — three clear the bar.
	if qr.Qualified != 3 {
		t.Fatalf("qualified = %d, want 3", qr.Qualified)
	}
	if qr.Qualified > 5 {
		t.Error("qualified exceeds scouted count")
	}
	for _, l := range qr.Leads {
		if l.Score < 60 {
			t.Errorf("lead %s below threshold with score %d", l.Name, l.Score)
		}
	}
}

func TestQualifierRequiresScoutResults(t *testing.T) {
	a := NewQualifierAction(zap.NewNop())
	if _, err := a.Run(context.Background(), ActionInput{Memory: workflow.Memory{}}); err == nil {
		t.Fatal("expected error without scout results")
	}
}

func TestQualifierKeepsProviderScores(t *testing.T) {
	a := NewQualifierAction(zap.NewNop())
	mem := workflow.Memory{
		workflow.KeyScoutResults: workflow.ScoutResults{
			Leads: []workflow.Lead{{Name: "Pre", Score: 95}},
		},
	}
	res, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: mem})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var qr workflow.QualifierResults
	res.MemoryPatch.Decode(workflow.KeyQualifierResults, &qr)
	if len(qr.Leads) != 1 || qr.Leads[0].Score != 95 {
		t.Errorf("provider score overwritten: %+v", qr.Leads)
	}
}

// --- Outreach ---

func TestOutreachBatchIsolation(t *testing.T) {
	sender := &fakeSender{failTo: map[string]bool{"cy@x.com": true}}
	a := NewOutreachEmailAction(sender, time.Millisecond, zap.NewNop())

	leads := []workflow.Lead{
		{Name: "Ann", Email: "ann@x.com"},
		{Name: "Bob", Email: "bob@x.com"},
		{Name: "Cy", Email: "cy@x.com"},
		{Name: "Dee", Email: "dee@x.com"},
		{Name: "Eli", Email: "eli@x.com"},
	}
	mem := workflow.Memory{
		workflow.KeyQualifierResults: workflow.QualifierResults{Qualified: 5, Leads: leads},
	}

	res, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"template": "Hi {name}!"},
		Memory: mem,
	})
	if err != nil {
		t.Fatalf("one recipient's failure aborted the batch: %v", err)
	}

	var sum workflow.BatchSummary
	if err := res.MemoryPatch.Decode(workflow.KeyOutreachResults, &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Attempted != 5 || sum.Succeeded != 4 || sum.Failed != 1 {
		t.Errorf("summary: %+v", sum)
	}
	if len(sender.sent) != 4 {
		t.Errorf("sent %d messages", len(sender.sent))
	}
	if sender.sent[0].Body != "Hi Ann!" {
		t.Errorf("template not rendered: %q", sender.sent[0].Body)
	}
}

func TestOutreachSampleCapped(t *testing.T) {
	sender := &fakeSender{}
	a := NewOutreachEmailAction(sender, time.Millisecond, zap.NewNop())

	leads := make([]workflow.Lead, 25)
	for i := range leads {
		leads[i] = workflow.Lead{Name: fmt.Sprintf("L%d", i), Email: fmt.Sprintf("l%d@x.com", i)}
	}
	mem := workflow.Memory{workflow.KeyQualifierResults: workflow.QualifierResults{Leads: leads}}

	res, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: mem})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum workflow.BatchSummary
	res.MemoryPatch.Decode(workflow.KeyOutreachResults, &sum)
	if sum.Attempted != 25 || sum.Succeeded != 25 {
		t.Errorf("totals: %+v", sum)
	}
	if len(sum.Sample) != sampleCap {
		t.Errorf("sample size = %d, want %d", len(sum.Sample), sampleCap)
	}
}

func TestOutreachRateLimitBackoffContinues(t *testing.T) {
	sender := &fakeSender{rateLimitOnce: true}
	a := NewOutreachEmailAction(sender, time.Millisecond, zap.NewNop())

	mem := workflow.Memory{workflow.KeyQualifierResults: workflow.QualifierResults{
		Leads: []workflow.Lead{{Name: "Ann", Email: "ann@x.com"}, {Name: "Bob", Email: "bob@x.com"}},
	}}

	res, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: mem})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum workflow.BatchSummary
	res.MemoryPatch.Decode(workflow.KeyOutreachResults, &sum)
	if sum.Succeeded != 2 {
		t.Errorf("rate-limited item not retried: %+v", sum)
	}
}

func TestOutreachSMSUsesPhone(t *testing.T) {
	sender := &fakeSender{}
	a := NewOutreachSMSAction(sender, time.Millisecond, zap.NewNop())

	mem := workflow.Memory{workflow.KeyQualifierResults: workflow.QualifierResults{
		Leads: []workflow.Lead{
			{Name: "Ann", Phone: "+1-555-0101"},
			{Name: "Bob", Email: "bob@x.com"}, // no phone: fails, others continue
		},
	}}
	res, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: mem})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var sum workflow.BatchSummary
	res.MemoryPatch.Decode(workflow.KeyOutreachResults, &sum)
	if sum.Succeeded != 1 || sum.Failed != 1 {
		t.Errorf("summary: %+v", sum)
	}
	if sender.sent[0].To != "+1-555-0101" || sender.sent[0].Channel != messaging.ChannelSMS {
		t.Errorf("unexpected message: %+v", sender.sent[0])
	}
}

func TestOutreachFallsBackToScoutResults(t *testing.T) {
	sender := &fakeSender{}
	a := NewOutreachEmailAction(sender, time.Millisecond, zap.NewNop())

	mem := workflow.Memory{workflow.KeyScoutResults: workflow.ScoutResults{
		Leads: []workflow.Lead{{Name: "Ann", Email: "ann@x.com"}},
	}}
	if _, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: mem}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d", len(sender.sent))
	}
}

func TestOutreachRequiresUpstreamLeads(t *testing.T) {
	a := NewOutreachEmailAction(&fakeSender{}, time.Millisecond, zap.NewNop())
	if _, err := a.Run(context.Background(), ActionInput{Memory: workflow.Memory{}}); err == nil {
		t.Fatal("expected error without upstream leads")
	}
}

// --- Content / carousel / image ---

func TestCarouselParsesModelOutput(t *testing.T) {
	chat := &fakeChat{content: "Sure! Here you go:\n" +
		`{"slides": ["Hook", "Problem", "Solution"], "image_prompts": ["a hook", "a problem", "a solution"]}`}
	a := NewCarouselAction(chat, zap.NewNop())

	res, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"topic": "lead gen", "slides": float64(3)},
		Memory: workflow.Memory{},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var out workflow.CarouselOutput
	if err := res.MemoryPatch.Decode(workflow.KeyCarouselOutput, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Slides) != 3 || len(out.ImagePrompts) != 3 || out.Topic != "lead gen" {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestCarouselRejectsUnparsableOutput(t *testing.T) {
	a := NewCarouselAction(&fakeChat{content: "I cannot do that."}, zap.NewNop())
	if _, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: workflow.Memory{}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestImagePrefersCarouselPrompts(t *testing.T) {
	img := &fakeImage{}
	a := NewImageAction(img, zap.NewNop())

	mem := workflow.Memory{workflow.KeyCarouselOutput: workflow.CarouselOutput{
		Slides:       []string{"s1", "s2"},
		ImagePrompts: []string{"p1", "p2"},
	}}
	res, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"prompt": "ignored standalone prompt"},
		Memory: mem,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var gi workflow.GeneratedImages
	res.MemoryPatch.Decode(workflow.KeyGeneratedImages, &gi)
	if gi.Count != 2 {
		t.Errorf("generated %d, want 2 from carousel prompts", gi.Count)
	}
}

func TestImagePartialFailureSucceeds(t *testing.T) {
	img := &fakeImage{failFor: map[string]bool{"p2": true}}
	a := NewImageAction(img, zap.NewNop())

	mem := workflow.Memory{workflow.KeyCarouselOutput: workflow.CarouselOutput{
		Slides:       []string{"s1", "s2", "s3"},
		ImagePrompts: []string{"p1", "p2", "p3"},
	}}
	res, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: mem})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output["generated"] != 2 || res.Output["failed"] != 1 {
		t.Errorf("output: %v", res.Output)
	}
}

func TestImageAllFailuresFailTheStep(t *testing.T) {
	img := &fakeImage{failFor: map[string]bool{"p1": true}}
	a := NewImageAction(img, zap.NewNop())

	if _, err := a.Run(context.Background(), ActionInput{
		Params: map[string]any{"prompt": "p1"},
		Memory: workflow.Memory{},
	}); err == nil {
		t.Fatal("expected error when every generation fails")
	}
}

// --- Generic LLM actions ---

func TestGenericActionsCoverLongTail(t *testing.T) {
	reg := NewRegistry()
	RegisterGenericActions(reg, &fakeChat{content: "summary text"}, zap.NewNop())

	for kind := range genericPrompts {
		a, ok := reg.Get(kind)
		if !ok {
			t.Errorf("kind %s not registered", kind)
			continue
		}
		res, err := a.Run(context.Background(), ActionInput{
			Params: map[string]any{"topic": "x"},
			Memory: workflow.Memory{},
		})
		if err != nil {
			t.Errorf("%s: %v", kind, err)
			continue
		}
		if !res.MemoryPatch.Has(workflow.OutputKey(kind)) {
			t.Errorf("%s: memory patch missing %s", kind, workflow.OutputKey(kind))
		}
	}
}

func TestGenericActionSkipsRegisteredKinds(t *testing.T) {
	reg := NewRegistry()
	dedicated := &stubAction{kind: workflow.KindResearcher}
	reg.Register(dedicated)
	RegisterGenericActions(reg, &fakeChat{content: "x"}, zap.NewNop())

	a, _ := reg.Get(workflow.KindResearcher)
	if a != dedicated {
		t.Error("generic registration replaced the dedicated action")
	}
}

func TestGenericActionEmptyOutputFails(t *testing.T) {
	a, err := NewGenericLLMAction(workflow.KindResearcher, &fakeChat{content: ""}, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := a.Run(context.Background(), ActionInput{Params: map[string]any{}, Memory: workflow.Memory{}}); err == nil {
		t.Fatal("expected error on empty model output")
	}
}

// --- Param helpers ---

func TestParamHelpers(t *testing.T) {
	params := map[string]any{"s": "val", "empty": "", "n": float64(7), "i": 3}
	if got := stringParam(params, "s", "d"); got != "val" {
		t.Errorf("stringParam = %q", got)
	}
	if got := stringParam(params, "empty", "d"); got != "d" {
		t.Errorf("empty string should fall back, got %q", got)
	}
	if got := stringParam(params, "missing", "d"); got != "d" {
		t.Errorf("missing should fall back, got %q", got)
	}
	if got := intParam(params, "n", 0); got != 7 {
		t.Errorf("intParam float64 = %d", got)
	}
	if got := intParam(params, "i", 0); got != 3 {
		t.Errorf("intParam int = %d", got)
	}
	if got := intParam(params, "missing", 9); got != 9 {
		t.Errorf("intParam fallback = %d", got)
	}
}
