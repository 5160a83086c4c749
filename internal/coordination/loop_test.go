package coordination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

func newTestRegistry(handlers ...handler.Handler) *handler.Registry {
	reg := handler.NewRegistry()
	for _, h := range handlers {
		reg.Register(h)
	}
	return reg
}

func TestLoopHandlerSequential(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "echo", marker: "touched"})
	h := LoopHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"items": []any{"a", "b", "c"},
		"body":  []any{map[string]any{"type": "echo"}},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, 3, out["count"])
	results := out["results"].([]any)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)
	assert.Equal(t, "a", first["item"])
	assert.Equal(t, 0, first["index"])
	assert.Equal(t, true, first["isFirst"])
	assert.Equal(t, false, first["isLast"])
	last := results[2].(map[string]any)
	assert.Equal(t, true, last["isLast"])
	assert.Equal(t, true, last["touched"])
}

func TestLoopHandlerEmptyItemsShortCircuits(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "echo"})
	h := LoopHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{"items": []any{}, "body": []any{map[string]any{"type": "echo"}}}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, 0, out["count"])
	assert.Equal(t, []any{}, out["results"])
}

func TestLoopHandlerParallelSuccess(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "echo", marker: "touched"})
	h := LoopHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"items":     []any{1, 2, 3, 4, 5},
		"parallel":  true,
		"batchSize": 2,
		"body":      []any{map[string]any{"type": "echo"}},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, 5, out["count"])
	results := out["results"].([]any)
	require.Len(t, results, 5)
	for i, r := range results {
		m := r.(map[string]any)
		assert.Equal(t, i, m["index"])
		assert.Equal(t, true, m["touched"])
	}
}

func TestLoopHandlerParallelFirstErrorCancelsSiblings(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "echo", failN: 100, calls: new(int)})
	h := LoopHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"items":     []any{1, 2, 3},
		"parallel":  true,
		"batchSize": 3,
		"body":      []any{map[string]any{"type": "echo"}},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.Error(t, err)
	assert.Nil(t, out)
}
