package provider

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// fakeProvider answers chats with canned content or an error.
type fakeProvider struct {
	id      string
	content string
	err     error
	calls   int
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }

func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Content: f.content}, nil
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]Model, error) { return nil, nil }
func (f *fakeProvider) HealthCheck(ctx context.Context) error           { return f.err }

func TestRouteUsesBinding(t *testing.T) {
	r := NewRouter(zap.NewNop())
	def := &fakeProvider{id: "default", content: "from default"}
	bound := &fakeProvider{id: "bound", content: "from bound"}
	r.Register(def)
	r.Register(bound)
	r.Bind("planner", "bound")

	resp, err := r.Route(context.Background(), "planner", &ChatRequest{})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if resp.Content != "from bound" {
		t.Errorf("content = %q", resp.Content)
	}

	// Unbound purpose goes to the default (first registered).
	resp, err = r.Route(context.Background(), "scout", &ChatRequest{})
	if err != nil {
		t.Fatalf("route default: %v", err)
	}
	if resp.Content != "from default" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestRouteFallsBack(t *testing.T) {
	r := NewRouter(zap.NewNop())
	broken := &fakeProvider{id: "p1", err: errors.New("connection refused")}
	healthy := &fakeProvider{id: "p2", content: "recovered"}
	r.Register(broken)
	r.Register(healthy)
	r.SetFallbacks("planner", []string{"p2"})

	resp, err := r.Route(context.Background(), "planner", &ChatRequest{})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestRouteRateLimitNotRetried(t *testing.T) {
	r := NewRouter(zap.NewNop())
	limited := &fakeProvider{id: "p1", err: ErrRateLimited}
	fallback := &fakeProvider{id: "p2", content: "should not run"}
	r.Register(limited)
	r.Register(fallback)
	r.SetFallbacks("planner", []string{"p2"})

	_, err := r.Route(context.Background(), "planner", &ChatRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback ran %d times; rate limits belong to the caller's backoff", fallback.calls)
	}
}

func TestRouteAllProvidersFailed(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeProvider{id: "p1", err: errors.New("down")})
	r.SetFallbacks("planner", []string{"missing"})

	if _, err := r.Route(context.Background(), "planner", &ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRouteNoProviders(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if _, err := r.Route(context.Background(), "planner", &ChatRequest{}); err == nil {
		t.Fatal("expected error with no providers")
	}
}

func TestImageRequiresCapableProvider(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeProvider{id: "chat-only"})
	if _, err := r.Image(context.Background(), "image_generator", "a cat"); err == nil {
		t.Fatal("expected error for non-image provider")
	}
}
