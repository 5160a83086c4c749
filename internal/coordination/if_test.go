package coordination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestIfHandlerBranchesOnCondition(t *testing.T) {
	tests := []struct {
		name       string
		condition  string
		input      map[string]any
		wantBranch string
	}{
		{name: "true branch", condition: "age >= 18", input: map[string]any{"age": 21}, wantBranch: "true"},
		{name: "false branch", condition: "age >= 18", input: map[string]any{"age": 12}, wantBranch: "false"},
		{name: "missing condition defaults false", condition: "", input: map[string]any{}, wantBranch: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := IfHandler{}
			node := model.Node{Parameters: map[string]any{"condition": tt.condition}}
			out, err := h.Execute(context.Background(), node, tt.input, &fakeExecutionContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantBranch, out["branch"])
		})
	}
}
