package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestSortHandlerByField(t *testing.T) {
	items := []any{
		map[string]any{"name": "c", "rank": 3},
		map[string]any{"name": "a", "rank": 1},
		map[string]any{"name": "b", "rank": 2},
	}

	h := SortHandler{}
	node := model.Node{Parameters: map[string]any{"field": "rank"}}
	out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
	require.NoError(t, err)

	sorted := out["items"].([]any)
	require.Len(t, sorted, 3)
	assert.Equal(t, "a", sorted[0].(map[string]any)["name"])
	assert.Equal(t, "b", sorted[1].(map[string]any)["name"])
	assert.Equal(t, "c", sorted[2].(map[string]any)["name"])
}

func TestSortHandlerDescending(t *testing.T) {
	items := []any{
		map[string]any{"name": "a", "rank": 1},
		map[string]any{"name": "b", "rank": 2},
	}

	h := SortHandler{}
	node := model.Node{Parameters: map[string]any{"field": "rank", "order": "desc"}}
	out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
	require.NoError(t, err)

	sorted := out["items"].([]any)
	assert.Equal(t, "b", sorted[0].(map[string]any)["name"])
	assert.Equal(t, "a", sorted[1].(map[string]any)["name"])
}

func TestSortHandlerByExpression(t *testing.T) {
	items := []any{
		map[string]any{"name": "a", "price": 5, "qty": 2},
		map[string]any{"name": "b", "price": 1, "qty": 100},
	}

	h := SortHandler{}
	node := model.Node{Parameters: map[string]any{"expression": "price * qty"}}
	out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
	require.NoError(t, err)

	sorted := out["items"].([]any)
	assert.Equal(t, "a", sorted[0].(map[string]any)["name"])
	assert.Equal(t, "b", sorted[1].(map[string]any)["name"])
}
