package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestFilterHandler(t *testing.T) {
	items := []any{
		map[string]any{"age": 10},
		map[string]any{"age": 25},
		map[string]any{"age": 40},
	}

	tests := []struct {
		name      string
		condition string
		wantCount int
	}{
		{name: "no condition passes everything through", condition: "", wantCount: 3},
		{name: "keeps items matching the condition", condition: "age >= 25", wantCount: 2},
		{name: "empty result when nothing matches", condition: "age > 1000", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := FilterHandler{}
			node := model.Node{Parameters: map[string]any{"condition": tt.condition}}
			out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, out["count"])
			assert.Len(t, out["items"], tt.wantCount)
			assert.Equal(t, tt.wantCount, out["_filteredCount"])
			assert.Equal(t, 3, out["_originalCount"])
		})
	}
}

func TestFilterHandlerInvalidCondition(t *testing.T) {
	h := FilterHandler{}
	node := model.Node{Parameters: map[string]any{"condition": "age >>> 1"}}
	_, err := h.Execute(context.Background(), node, map[string]any{"items": []any{}}, newFakeExecutionContext())
	assert.Error(t, err)
}

func TestFilterHandlerEmptyConditionsWithKeepMatchingReturnsInputUnchanged(t *testing.T) {
	items := []any{
		map[string]any{"age": 10},
		map[string]any{"age": 25},
	}

	h := FilterHandler{}
	node := model.Node{Parameters: map[string]any{"conditions": []any{}, "keepMatching": true}}
	out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, items, out["items"])
	assert.Equal(t, out["_originalCount"], out["_filteredCount"])
}

func TestFilterHandlerConditionsListMatching(t *testing.T) {
	items := []any{
		map[string]any{"age": 10, "active": true},
		map[string]any{"age": 25, "active": true},
		map[string]any{"age": 40, "active": false},
	}

	h := FilterHandler{}
	node := model.Node{Parameters: map[string]any{
		"conditions": []any{
			map[string]any{"field": "active", "operator": "equals", "value": true},
		},
	}}
	out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])
	assert.Equal(t, 2, out["_filteredCount"])
	assert.Equal(t, 3, out["_originalCount"])
}

func TestFilterHandlerConditionsListKeepMatchingFalseExcludesMatches(t *testing.T) {
	items := []any{
		map[string]any{"age": 10, "active": true},
		map[string]any{"age": 25, "active": false},
	}

	h := FilterHandler{}
	node := model.Node{Parameters: map[string]any{
		"conditions": []any{
			map[string]any{"field": "active", "operator": "equals", "value": true},
		},
		"keepMatching": false,
	}}
	out, err := h.Execute(context.Background(), node, map[string]any{"items": items}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
	kept := out["items"].([]any)
	require.Len(t, kept, 1)
	assert.Equal(t, false, kept[0].(map[string]any)["active"])
}
