package coordination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestRateLimitHandlerTokenBucketAcquireSucceeds(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "op", marker: "ran"})
	h := RateLimitHandler{Registry: reg, Buckets: NewBuckets()}
	node := model.Node{Parameters: map[string]any{
		"bucketId":         "test-ok",
		"maxTokens":        float64(10),
		"tokensPerSecond":  float64(10),
		"tokensPerRequest": float64(1),
		"operations":       []any{map[string]any{"type": "op"}},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, false, out["throttled"])
	assert.Equal(t, true, out["ran"])
}

func TestRateLimitHandlerTokenBucketThrottledWithoutWait(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "op"})
	h := RateLimitHandler{Registry: reg, Buckets: NewBuckets()}
	node := model.Node{Parameters: map[string]any{
		"bucketId":         "test-throttle",
		"maxTokens":        float64(1),
		"tokensPerSecond":  float64(0.001),
		"tokensPerRequest": float64(1),
		"waitForTokens":    false,
		"operations":       []any{map[string]any{"type": "op"}},
	}}

	// first call drains the single token
	out1, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, true, out1["success"])

	out2, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, false, out2["success"])
	assert.Equal(t, true, out2["throttled"])
}

func TestRateLimitHandlerSlidingWindowAcquire(t *testing.T) {
	reg := newTestRegistry(echoHandler{typ: "op", marker: "ran"})
	h := RateLimitHandler{Registry: reg, Buckets: NewBuckets()}
	node := model.Node{Parameters: map[string]any{
		"bucketId":             "test-window",
		"strategy":             "sliding_window",
		"windowSizeMs":         1000,
		"maxRequestsPerWindow": 5,
		"operations":           []any{map[string]any{"type": "op"}},
	}}

	out, err := h.Execute(context.Background(), node, map[string]any{}, &fakeExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, 1, out["requestsInWindow"])
}
