package coordination

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// IfHandler evaluates a boolean condition expression over the node's
// input and gates its "true"/"false" out-edges accordingly.
type IfHandler struct{}

func (IfHandler) NodeType() string { return "if" }

func (IfHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	condition := dynvalue.GetString(node.Parameters, "condition", "false")
	result := expression.EvalCondition(condition, input)

	branch := "false"
	if result {
		branch = "true"
	}

	out := dynvalue.Copy(input)
	out["conditionResult"] = result
	out["branch"] = branch
	return out, nil
}

var _ handler.Handler = IfHandler{}
