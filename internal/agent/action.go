package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/nidhogg/leadflow/internal/workflow"
)

// ActionInput is what a concrete agent action receives: its own step params
// plus the workflow's accumulated memory for reading upstream results.
type ActionInput struct {
	UserID string
	Params map[string]any
	Memory workflow.Memory
}

// ActionResult is what an action produces: its step output plus the keys it
// wants merged into workflow memory for downstream steps.
type ActionResult struct {
	Output      map[string]any
	MemoryPatch workflow.Memory
}

// Action is the domain half of a step executor. The harness owns the shared
// lifecycle (status transitions, memory merge, chaining); an Action only
// performs its agent-specific work.
type Action interface {
	Kind() workflow.AgentKind
	Run(ctx context.Context, in ActionInput) (*ActionResult, error)
}

// Registry is the closed dispatch table mapping agent kinds to actions.
type Registry struct {
	mu      sync.RWMutex
	actions map[workflow.AgentKind]Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[workflow.AgentKind]Action)}
}

// Register adds an action. Registering the same kind twice is a bug.
func (r *Registry) Register(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.actions[a.Kind()]; dup {
		panic(fmt.Sprintf("duplicate action for kind %s", a.Kind()))
	}
	r.actions[a.Kind()] = a
}

// Get looks up the action for a kind.
func (r *Registry) Get(kind workflow.AgentKind) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[kind]
	return a, ok
}

// Kinds returns the registered kinds.
func (r *Registry) Kinds() []workflow.AgentKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]workflow.AgentKind, 0, len(r.actions))
	for k := range r.actions {
		kinds = append(kinds, k)
	}
	return kinds
}
