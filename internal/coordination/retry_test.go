package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
	"github.com/flowbase/workflow-engine/internal/settings"
)

func TestRetryHandlerFallsBackToSettingsForMaxRetries(t *testing.T) {
	calls := new(int)
	reg := newTestRegistry(echoHandler{typ: "op", failN: 100, calls: calls})
	h := RetryHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"operations":     []any{map[string]any{"type": "op"}},
		"initialDelayMs": 0,
	}}
	ec := &fakeExecutionContext{settingInts: map[string]int{settings.KeyRetryAttempts: 1}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, ec)
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, 2, out["attemptCount"])
}

func TestRetryHandlerSucceedsOnFirstAttempt(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "op", marker: "ran"})
	h := RetryHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"operations": []any{map[string]any{"type": "op"}},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, out["attemptCount"])
}

func TestRetryHandlerSucceedsAfterFailures(t *testing.T) {
	calls := new(int)
	reg := newTestRegistry(echoHandler{typ: "op", failN: 2, calls: calls, marker: "ran"})
	h := RetryHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"operations":     []any{map[string]any{"type": "op"}},
		"maxRetries":     5,
		"initialDelayMs": 0,
		"jitter":         false,
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 3, out["attemptCount"])
}

func TestRetryHandlerExhaustsMaxRetries(t *testing.T) {
	calls := new(int)
	reg := newTestRegistry(echoHandler{typ: "op", failN: 100, calls: calls})
	h := RetryHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"operations":     []any{map[string]any{"type": "op"}},
		"maxRetries":     0,
		"initialDelayMs": 0,
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, 1, out["attemptCount"])
	require.Contains(t, out, "lastError")
}

func TestRetryHandlerNonRetryableErrorShortCircuits(t *testing.T) {
	calls := new(int)
	reg := newTestRegistry(echoHandler{typ: "op", failN: 100, calls: calls})
	h := RetryHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"operations":         []any{map[string]any{"type": "op"}},
		"maxRetries":         5,
		"initialDelayMs":     0,
		"nonRetryableErrors": []any{"HandlerFailure"},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, 1, out["attemptCount"])
}

func TestRetryHandlerCancellation(t *testing.T) {
	calls := new(int)
	reg := newTestRegistry(echoHandler{typ: "op", failN: 100, calls: calls})
	h := RetryHandler{Registry: reg}
	node := model.Node{Parameters: map[string]any{
		"operations":     []any{map[string]any{"type": "op"}},
		"maxRetries":     10,
		"initialDelayMs": 50,
		"jitter":         false,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out, err := h.Execute(ctx, node, map[string]any{}, &fakeExecutionContext{})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrCancelled))
	assert.Equal(t, false, out["success"])
}
