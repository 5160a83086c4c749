package actions

import (
	"encoding/json"
	"fmt"

	"context"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// SetHandler shapes a node's output from its input, grounded on the
// teacher's SetNode: manual field-by-field assignment, a JSON blob
// merged in, or a single expression whose map result is merged in.
type SetHandler struct{}

func (SetHandler) NodeType() string { return "set" }

func (SetHandler) Execute(_ context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	mode := dynvalue.GetString(node.Parameters, "mode", "manual")
	keepOnlySet := dynvalue.GetBool(node.Parameters, "keepOnlySet", false)
	dotNotation := dynvalue.GetBool(node.Parameters, "dotNotation", true)

	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)

	result := make(map[string]any)
	if !keepOnlySet {
		result = dynvalue.Copy(input)
	}

	switch mode {
	case "json":
		raw := dynvalue.GetString(node.Parameters, "jsonData", "{}")
		raw = expression.Interpolate(raw, exprCtx)
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, model.NewHandlerFailureError("set node: invalid jsonData", err)
		}
		dynvalue.MergeShallow(result, parsed)

	case "expression":
		expr := dynvalue.GetString(node.Parameters, "expression", "")
		if expr == "" {
			break
		}
		// An expression that does not evaluate to a map leaves result
		// unchanged; per-field set already handles the common case.
		if evaluated, err := expression.EvalAny(expr, exprCtx.Data); err == nil {
			if m, ok := evaluated.(map[string]any); ok {
				dynvalue.MergeShallow(result, m)
			}
		}

	default: // "manual"
		values := dynvalue.GetSlice(node.Parameters, "values")
		for _, raw := range values {
			field, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name := dynvalue.GetString(field, "name", "")
			if name == "" {
				continue
			}
			value := field["value"]
			if s, ok := value.(string); ok {
				value = expression.Interpolate(s, exprCtx)
			}
			value = convertFieldType(value, dynvalue.GetString(field, "type", "string"))

			if dotNotation {
				dynvalue.SetByPath(result, name, value)
			} else {
				result[name] = value
			}
		}
	}

	return result, nil
}

// convertFieldType coerces value to targetType, matching the teacher
// SetNode's convertType helper.
func convertFieldType(value any, targetType string) any {
	switch targetType {
	case "string":
		return fmt.Sprintf("%v", value)
	case "number":
		return dynvalue.ToNumber(value)
	case "boolean":
		if b, ok := value.(bool); ok {
			return b
		}
		return fmt.Sprintf("%v", value) == "true"
	case "json":
		if s, ok := value.(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed
			}
		}
		return value
	default:
		return value
	}
}

var _ handler.Handler = SetHandler{}
