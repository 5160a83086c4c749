package actions

import (
	"context"
	"sort"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// SortHandler orders input["items"] by a dotted field path or, if
// "expression" is set instead of "field", by the result of evaluating
// that expression against each item. Ties and non-comparable keys keep
// their relative order (sort.SliceStable).
type SortHandler struct{}

func (SortHandler) NodeType() string { return "sort" }

func (SortHandler) Execute(_ context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	items := itemsOf(input)
	field := dynvalue.GetString(node.Parameters, "field", "")
	expr := dynvalue.GetString(node.Parameters, "expression", "")
	descending := dynvalue.GetString(node.Parameters, "order", "asc") == "desc"

	keyOf := func(item any) any {
		if expr != "" {
			v, err := expression.EvalAny(expr, itemEnv(item, input, ec))
			if err != nil {
				return nil
			}
			return v
		}
		v, _ := dynvalue.ByPath(item, field)
		return v
	}

	sorted := append([]any(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := keyOf(sorted[i]), keyOf(sorted[j])
		if descending {
			a, b = b, a
		}
		less, ok := lessThan(a, b)
		if !ok {
			return false
		}
		return less
	})

	return map[string]any{"items": sorted, "count": len(sorted)}, nil
}

// lessThan compares two sort keys of the same dynamic shape; ok is false
// for nil or mismatched-type keys so the caller's stable sort leaves
// those pairs in their original order.
func lessThan(a, b any) (less bool, ok bool) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av < bv, true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return !av && bv, true
		}
	default:
		af, aok := numeric(a)
		bf, bok := numeric(b)
		if aok && bok {
			return af < bf, true
		}
	}
	return false, false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64, int, int64:
		return dynvalue.ToNumber(n), true
	default:
		return 0, false
	}
}

var _ handler.Handler = SortHandler{}
