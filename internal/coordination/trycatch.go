package coordination

import (
	"context"
	"time"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// TryCatchHandler runs tryOperations, routing any error into
// catchOperations under errorVariable, then always runs
// finallyOperations, per §4.5.5.
type TryCatchHandler struct {
	Registry *handler.Registry
}

func (h TryCatchHandler) NodeType() string { return "tryCatch" }

func (h TryCatchHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	tryOps := ParseOperations(dynvalue.GetSlice(node.Parameters, "tryOperations"))
	catchOps := ParseOperations(dynvalue.GetSlice(node.Parameters, "catchOperations"))
	finallyOps := ParseOperations(dynvalue.GetSlice(node.Parameters, "finallyOperations"))
	errorVariable := dynvalue.GetString(node.Parameters, "errorVariable", "error")
	continueOnError := dynvalue.GetBool(node.Parameters, "continueOnError", true)

	result := dynvalue.Copy(input)
	hadError := false

	tryOut, tryErr := RunOperations(ctx, h.Registry, tryOps, input, ec)
	if tryErr != nil {
		hadError = true
		dynvalue.MergeShallow(result, tryOut)
		result[errorVariable] = map[string]any{
			"message":   tryErr.Error(),
			"type":      string(model.KindOf(tryErr)),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		catchOut, catchErr := RunOperations(ctx, h.Registry, catchOps, result, ec)
		if catchErr != nil {
			result["catchError"] = catchErr.Error()
			if !continueOnError {
				return result, catchErr
			}
		} else {
			dynvalue.MergeShallow(result, catchOut)
		}
	} else {
		dynvalue.MergeShallow(result, tryOut)
	}

	result["_success"] = !hadError
	result["_hadError"] = hadError

	finallyOut, finallyErr := RunOperations(ctx, h.Registry, finallyOps, result, ec)
	if finallyErr != nil {
		result["finallyError"] = finallyErr.Error()
		if !continueOnError {
			return result, finallyErr
		}
	} else {
		dynvalue.MergeShallow(result, finallyOut)
	}

	result["_tryCatchSuccess"] = !hadError
	result["_tryCatchExecuted"] = true

	if hadError && !continueOnError {
		return result, tryErr
	}
	return result, nil
}

var _ handler.Handler = TryCatchHandler{}
