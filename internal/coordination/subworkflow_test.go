package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestSubworkflowHandlerSyncSuccess(t *testing.T) {
	h := SubworkflowHandler{}
	node := model.Node{Parameters: map[string]any{"workflowId": "child-1"}}
	ec := &fakeExecutionContext{
		invoker: func(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error) {
			return model.Execution{ID: "exec-child", Status: model.StatusSuccess, Output: map[string]any{"greeting": "hi"}}, nil
		},
	}

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.NoError(t, err)
	assert.Equal(t, "exec-child", out["executionId"])
	assert.Equal(t, "hi", out["greeting"])
}

func TestSubworkflowHandlerSyncFailureDoesNotFailParent(t *testing.T) {
	h := SubworkflowHandler{}
	node := model.Node{Parameters: map[string]any{"workflowId": "child-1"}}
	ec := &fakeExecutionContext{
		invoker: func(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error) {
			return model.Execution{ID: "exec-child", Status: model.StatusFailed, ErrorMessage: "boom"}, nil
		},
	}

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "boom", out["error"])
	assert.Equal(t, map[string]any{}, out["output"])
}

func TestSubworkflowHandlerAsyncFireAndForget(t *testing.T) {
	h := SubworkflowHandler{}
	node := model.Node{Parameters: map[string]any{"workflowId": "child-1", "mode": "async"}}
	invoked := make(chan struct{}, 1)
	ec := &fakeExecutionContext{
		invoker: func(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error) {
			invoked <- struct{}{}
			return model.Execution{Status: model.StatusSuccess}, nil
		},
	}

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.NoError(t, err)
	assert.Equal(t, true, out["started"])
	assert.Equal(t, "async", out["mode"])

	select {
	case <-invoked:
	case <-time.After(time.Second):
		t.Fatal("async subworkflow was never invoked")
	}
}

func TestSubworkflowHandlerRecursionGuard(t *testing.T) {
	h := SubworkflowHandler{}
	node := model.Node{Parameters: map[string]any{"workflowId": "wf-ancestor"}}
	ec := &fakeExecutionContext{ancestors: []string{"wf-root", "wf-ancestor"}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrRecursion))
	assert.Nil(t, out)
}
