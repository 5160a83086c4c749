package actions

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// FilterHandler keeps only the items of input["items"] (or, absent that
// key, the whole input coerced to a list per dynvalue.ToSlice) for which
// the node's condition expression evaluates true, reusing the same
// restricted expression language the if/switch handlers use (§4.3a).
type FilterHandler struct{}

func (FilterHandler) NodeType() string { return "filter" }

func (FilterHandler) Execute(_ context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	items := itemsOf(input)
	originalCount := len(items)

	conditions := parseFilterConditions(node.Parameters)
	condition := dynvalue.GetString(node.Parameters, "condition", "")

	if len(conditions) == 0 && condition == "" {
		return map[string]any{
			"items":          items,
			"count":          originalCount,
			"_filteredCount": originalCount,
			"_originalCount": originalCount,
		}, nil
	}

	keepMatching := dynvalue.GetBool(node.Parameters, "keepMatching", true)
	combineWith := dynvalue.GetString(node.Parameters, "combineWith", "and")

	var compiled *expression.CompiledCondition
	if len(conditions) == 0 {
		var err error
		compiled, err = expression.CompileCondition(condition)
		if err != nil {
			return nil, model.NewHandlerFailureError("filter node: invalid condition", err)
		}
	}

	kept := make([]any, 0, len(items))
	for _, item := range items {
		env := itemEnv(item, input, ec)
		var matched bool
		if compiled != nil {
			matched = compiled.Eval(env)
		} else {
			matched = expression.EvalSwitchRule(conditions, combineWith, env)
		}
		if matched == keepMatching {
			kept = append(kept, item)
		}
	}

	return map[string]any{
		"items":          kept,
		"count":          len(kept),
		"_filteredCount": len(kept),
		"_originalCount": originalCount,
	}, nil
}

// parseFilterConditions reads a "conditions" parameter shaped like
// switch's rule conditions (field/operator/value), reusing the same
// expression.SwitchCondition the coordination switch handler parses.
func parseFilterConditions(parameters map[string]any) []expression.SwitchCondition {
	raw := dynvalue.GetSlice(parameters, "conditions")
	conditions := make([]expression.SwitchCondition, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		conditions = append(conditions, expression.SwitchCondition{
			Field:    dynvalue.GetString(m, "field", ""),
			Operator: dynvalue.GetString(m, "operator", "equals"),
			Value:    m["value"],
		})
	}
	return conditions
}

// itemsOf returns input["items"] if present and a list, otherwise the
// whole input coerced to a single-element or passthrough list.
func itemsOf(input map[string]any) []any {
	if raw, ok := input["items"]; ok {
		return dynvalue.ToSlice(raw)
	}
	return dynvalue.ToSlice(input)
}

// itemEnv builds the per-item evaluation environment: the item's own
// fields merged over the node's ambient input (so a plain-map item can
// reference both its own keys and, for scalar items, an "item" key),
// plus workflow settings, when there are any, under the "settings" key.
func itemEnv(item any, input map[string]any, ec handler.ExecutionContext) map[string]any {
	env := dynvalue.Copy(input)
	if m, ok := item.(map[string]any); ok {
		dynvalue.MergeShallow(env, m)
	} else {
		env["item"] = item
	}
	if settings := ec.Workflow().Settings; len(settings) > 0 {
		env["settings"] = settings
	}
	return env
}

var _ handler.Handler = FilterHandler{}
