package coordination

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// Operation is one step of an embedded operation sequence (a loop body, a
// tryCatch try/catch/finally block, the body wrapped by retry or
// rateLimit): a node type plus its parameters, run without its own edges.
type Operation struct {
	Type       string
	Name       string
	Parameters map[string]any
}

// ParseOperations reads an "operations"-shaped parameter (a list of
// {type, name?, parameters?} maps) into Operations.
func ParseOperations(raw []any) []Operation {
	ops := make([]Operation, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ops = append(ops, Operation{
			Type:       dynvalue.GetString(m, "type", ""),
			Name:       dynvalue.GetString(m, "name", ""),
			Parameters: dynvalue.GetMap(m, "parameters"),
		})
	}
	return ops
}

// RunOperations executes ops in order against the handler registry,
// threading each step's output map into the next step's input (shallow
// overlay on top of the running input, matching the engine's top-level
// merge-at-delivery semantics). It stops and returns the first error.
func RunOperations(ctx context.Context, registry *handler.Registry, ops []Operation, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	current := dynvalue.Copy(input)
	for _, op := range ops {
		h, err := registry.Lookup(op.Type)
		if err != nil {
			return current, err
		}
		node := model.Node{ID: op.Name, Type: op.Type, Name: op.Name, Parameters: op.Parameters}
		output, err := h.Execute(ctx, node, current, ec)
		if err != nil {
			return current, err
		}
		dynvalue.MergeShallow(current, output)
	}
	return current, nil
}
