package coordination

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// SubworkflowHandler invokes another workflow as a nested execution, per
// §4.5.8. The recursion guard walks the full ancestor chain (not just the
// immediate parent) so A -> B -> A is caught even through an intermediate
// workflow, resolving the spec's Open Question in favor of the stricter
// check.
type SubworkflowHandler struct{}

func (h SubworkflowHandler) NodeType() string { return "subworkflow" }

func (h SubworkflowHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	workflowID := dynvalue.GetString(node.Parameters, "workflowId", "")
	if workflowID == "" {
		return nil, model.NewInvalidWorkflowError("subworkflow node missing workflowId parameter")
	}

	for _, ancestor := range ec.Ancestors() {
		if ancestor == workflowID {
			return nil, model.NewRecursionError(workflowID)
		}
	}

	mode := dynvalue.GetString(node.Parameters, "mode", "sync")
	inputMapping := dynvalue.GetMap(node.Parameters, "inputMapping")
	outputMapping := dynvalue.GetMap(node.Parameters, "outputMapping")

	childInput := mapFields(input, inputMapping)

	if mode == "async" {
		go func() {
			// Fire-and-forget: the child execution runs to completion on
			// its own; this node does not observe its result.
			_, _ = ec.InvokeSubworkflow(context.Background(), workflowID, childInput)
		}()
		return map[string]any{
			"workflowId": workflowID,
			"mode":       "async",
			"started":    true,
		}, nil
	}

	exec, err := ec.InvokeSubworkflow(ctx, workflowID, childInput)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"workflowId":  workflowID,
		"mode":        "sync",
		"executionId": exec.ID,
		"status":      string(exec.Status),
	}
	if exec.Status != model.StatusSuccess {
		// Sub-execution failure surfaces to the parent as data, not as a
		// handler error: the parent does not automatically fail just
		// because a nested workflow did.
		out["success"] = false
		out["error"] = exec.ErrorMessage
		out["output"] = map[string]any{}
		return out, nil
	}

	if len(outputMapping) == 0 {
		dynvalue.MergeShallow(out, exec.Output)
	} else {
		dynvalue.MergeShallow(out, mapFields(exec.Output, outputMapping))
	}
	out["success"] = true
	return out, nil
}

// mapFields renames/selects keys from src according to mapping, a
// {destKey: sourcePath} shape; an empty mapping passes src through
// unchanged (matching the engine's default whole-map handoff).
func mapFields(src map[string]any, mapping map[string]any) map[string]any {
	if len(mapping) == 0 {
		return dynvalue.Copy(src)
	}
	out := make(map[string]any, len(mapping))
	for destKey, rawPath := range mapping {
		path, ok := rawPath.(string)
		if !ok {
			continue
		}
		if val, found := dynvalue.ByPath(src, path); found {
			out[destKey] = val
		}
	}
	return out
}

var _ handler.Handler = SubworkflowHandler{}
