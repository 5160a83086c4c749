package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestManualTriggerHandlerPassesInputThrough(t *testing.T) {
	h := ManualTriggerHandler{}
	out, err := h.Execute(context.Background(), model.Node{}, map[string]any{"foo": "bar"}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, "bar", out["foo"])
	assert.Equal(t, "manual", out["triggerType"])
	assert.NotEmpty(t, out["triggeredAt"])
}

func TestWebhookTriggerHandlerWrapsPayload(t *testing.T) {
	h := WebhookTriggerHandler{}
	node := model.Node{Parameters: map[string]any{"path": "/hooks/orders"}}
	out, err := h.Execute(context.Background(), node, map[string]any{"order": 1}, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, "webhook", out["triggerType"])
	assert.Equal(t, "/hooks/orders", out["path"])
	raw := out["raw"].(map[string]any)
	assert.Equal(t, 1, raw["order"])
}

func TestScheduleTriggerHandlerValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		node    model.Node
		wantErr bool
	}{
		{
			name: "valid cron expression",
			node: model.Node{ID: "n1", Parameters: map[string]any{
				"mode": "cron", "cronExpression": "0 */5 * * * *",
			}},
		},
		{
			name: "cron mode missing expression",
			node: model.Node{ID: "n2", Parameters: map[string]any{"mode": "cron"}},
			wantErr: true,
		},
		{
			name: "invalid cron expression",
			node: model.Node{ID: "n3", Parameters: map[string]any{
				"mode": "cron", "cronExpression": "not a cron",
			}},
			wantErr: true,
		},
		{
			name: "interval mode with valid interval",
			node: model.Node{ID: "n4", Parameters: map[string]any{
				"mode": "interval", "interval": 30,
			}},
		},
		{
			name: "interval mode with too-small interval",
			node: model.Node{ID: "n5", Parameters: map[string]any{
				"mode": "interval", "interval": 0,
			}},
			wantErr: true,
		},
	}

	h := NewScheduleTriggerHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.ValidateSchedule(tt.node)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduleTriggerHandlerExecute(t *testing.T) {
	h := NewScheduleTriggerHandler()
	node := model.Node{Parameters: map[string]any{"mode": "cron"}}
	out, err := h.Execute(context.Background(), node, nil, newFakeExecutionContext())
	require.NoError(t, err)
	assert.Equal(t, "schedule", out["triggerType"])
	assert.Equal(t, "cron", out["mode"])
}
