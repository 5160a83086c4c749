package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestExecuteCommandHandlerSuccess(t *testing.T) {
	h := NewExecuteCommandHandler()
	node := model.Node{Parameters: map[string]any{
		"command": "echo hello",
	}}
	out, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, 0, out["exitCode"])
	assert.Contains(t, out["stdout"], "hello")
}

func TestExecuteCommandHandlerNonZeroExit(t *testing.T) {
	h := NewExecuteCommandHandler()
	node := model.Node{Parameters: map[string]any{
		"command": "sh -c 'exit 3'",
	}}
	out, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, 3, out["exitCode"])
}

func TestExecuteCommandHandlerMissingCommand(t *testing.T) {
	h := NewExecuteCommandHandler()
	node := model.Node{Parameters: map[string]any{}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestExecuteCommandHandlerInterpolatesCommand(t *testing.T) {
	h := NewExecuteCommandHandler()
	node := model.Node{Parameters: map[string]any{
		"command": "echo ${greeting}",
	}}
	out, err := h.Execute(context.Background(), node, map[string]any{"greeting": "hi"}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Contains(t, out["stdout"], "hi")
}

func TestExecuteCommandHandlerTimeout(t *testing.T) {
	h := NewExecuteCommandHandler()
	node := model.Node{Parameters: map[string]any{
		"command":        "sleep 5",
		"timeoutSeconds": 1,
	}}
	_, err := h.Execute(context.Background(), node, map[string]any{}, newFakeExecutionContext())
	require.Error(t, err)
	engErr, ok := err.(*model.EngineError)
	require.True(t, ok)
	assert.Equal(t, model.ErrTimeout, engErr.Kind)
}
