package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// ManualTriggerHandler seeds a run from whatever input the caller passed
// to Executor.execute, stamping trigger metadata the way the teacher's
// ManualTriggerNode does. Per §6's trigger-metadata supplement, schedule
// and webhook triggers inject the same shape without the receiver
// plumbing spec.md explicitly excludes.
type ManualTriggerHandler struct{}

func (ManualTriggerHandler) NodeType() string { return "manualTrigger" }

func (ManualTriggerHandler) Execute(_ context.Context, _ model.Node, input map[string]any, _ handler.ExecutionContext) (map[string]any, error) {
	out := dynvalue.Copy(input)
	out["triggeredAt"] = time.Now().UTC().Format(time.RFC3339)
	out["triggerType"] = "manual"
	return out, nil
}

// WebhookTriggerHandler stands in for the webhook receiver: it never
// listens on a socket (spec.md scopes receiver plumbing out), it only
// shapes whatever payload the caller already delivered as the node's
// input into the trigger envelope the teacher's WebhookTriggerNode
// produces.
type WebhookTriggerHandler struct{}

func (WebhookTriggerHandler) NodeType() string { return "webhookTrigger" }

func (WebhookTriggerHandler) Execute(_ context.Context, node model.Node, input map[string]any, _ handler.ExecutionContext) (map[string]any, error) {
	return map[string]any{
		"triggeredAt": time.Now().UTC().Format(time.RFC3339),
		"triggerType": "webhook",
		"path":        dynvalue.GetString(node.Parameters, "path", ""),
		"raw":         input,
	}, nil
}

// ScheduleTriggerHandler validates and describes a cron/interval schedule
// at node-configuration time; the schedule runner that actually wakes a
// new execution up is the receiver plumbing spec.md excludes, so Execute
// only stamps the same trigger envelope the teacher's ScheduleTriggerNode
// produces when its cron job fires.
type ScheduleTriggerHandler struct {
	parser cron.Parser
}

// NewScheduleTriggerHandler builds a handler using the same field mask
// the teacher's ScheduleTriggerNode validates schedules with.
func NewScheduleTriggerHandler() *ScheduleTriggerHandler {
	return &ScheduleTriggerHandler{
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (*ScheduleTriggerHandler) NodeType() string { return "scheduleTrigger" }

// ValidateSchedule parses the node's cron or interval configuration,
// returning an error describing what's wrong without running anything.
// The executor's workflow-validation pass can call this ahead of a run so
// a bad cron expression is caught at save time, not at fire time.
func (h *ScheduleTriggerHandler) ValidateSchedule(node model.Node) error {
	mode := dynvalue.GetString(node.Parameters, "mode", "interval")
	if mode == "cron" {
		cronExpr := dynvalue.GetString(node.Parameters, "cronExpression", "")
		if cronExpr == "" {
			return fmt.Errorf("scheduleTrigger node %q: cronExpression is required in cron mode", node.ID)
		}
		if _, err := h.parser.Parse(cronExpr); err != nil {
			return fmt.Errorf("scheduleTrigger node %q: invalid cron expression: %w", node.ID, err)
		}
		return nil
	}
	if dynvalue.GetInt(node.Parameters, "interval", 60) < 1 {
		return fmt.Errorf("scheduleTrigger node %q: interval must be at least 1 second", node.ID)
	}
	return nil
}

func (h *ScheduleTriggerHandler) Execute(_ context.Context, node model.Node, _ map[string]any, _ handler.ExecutionContext) (map[string]any, error) {
	mode := dynvalue.GetString(node.Parameters, "mode", "interval")
	return map[string]any{
		"triggeredAt": time.Now().UTC().Format(time.RFC3339),
		"triggerType": "schedule",
		"mode":        mode,
	}, nil
}

var (
	_ handler.Handler = ManualTriggerHandler{}
	_ handler.Handler = WebhookTriggerHandler{}
	_ handler.Handler = (*ScheduleTriggerHandler)(nil)
)
