// Package handler defines the node-handler contract and the process-wide
// registry that dispatches a node's type tag to its implementation.
package handler

import (
	"context"
	"sync"

	"github.com/flowbase/workflow-engine/internal/model"
)

// Handler is implemented by every node type. Execute receives the node's
// declared parameters, its effective (merged) input, and the execution
// context, and returns the node's output map. Handlers must honor
// ctx.Done() at every I/O boundary and between internal steps, failing
// with a Cancelled error when it fires.
type Handler interface {
	NodeType() string
	Execute(ctx context.Context, node model.Node, input map[string]any, ec ExecutionContext) (map[string]any, error)
}

// ExecutionContext is the subset of the per-run execution context a
// handler is allowed to see: accessors, not raw engine state. Defined here
// (rather than imported from internal/execctx) to keep this package free
// of a dependency on the engine's concrete context implementation;
// internal/execctx.Context satisfies it.
type ExecutionContext interface {
	ExecutionID() string
	Workflow() model.Workflow
	NodeOutput(nodeID string) (map[string]any, bool)
	Credential(ref string) (string, bool)
	Setting(key string, def any) any
	SettingInt(key string, def int) int
	SettingBool(key string, def bool) bool
	Logger() Logger
	InvokeSubworkflow(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error)
	Ancestors() []string
	Cancelled() bool
}

// Logger is the minimal logging surface handlers use; satisfied by
// internal/platform/logger.Logger.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps a node-type tag to its Handler. It is built at startup and
// read-only thereafter; lookups are still guarded by a mutex so late
// registration in tests doesn't race.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h to the registry, keyed by h.NodeType(). A later call for
// the same type overwrites the earlier one, matching the teacher's
// init()-time self-registration idiom used per node-type file.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.NodeType()] = h
}

// Lookup resolves nodeType to its Handler, failing with UnknownNodeType.
func (r *Registry) Lookup(nodeType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	if !ok {
		return nil, model.NewUnknownNodeTypeError(nodeType)
	}
	return h, nil
}

// Types returns the registered node-type tags, for diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}

// Func adapts a plain function into a Handler, for small coordination and
// action handlers that don't need their own named type.
type Func struct {
	Type string
	Fn   func(ctx context.Context, node model.Node, input map[string]any, ec ExecutionContext) (map[string]any, error)
}

func (f Func) NodeType() string { return f.Type }

func (f Func) Execute(ctx context.Context, node model.Node, input map[string]any, ec ExecutionContext) (map[string]any, error) {
	return f.Fn(ctx, node, input, ec)
}

var _ Handler = Func{}
