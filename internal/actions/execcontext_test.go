package actions

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// newFakeExprContext builds an expression.Context the way a handler would,
// for tests that exercise a helper taking an expression.Context directly
// rather than going through a full Execute call.
func newFakeExprContext(input map[string]any, ec *fakeExecutionContext) expression.Context {
	return expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)
}

// fakeExecutionContext is a minimal handler.ExecutionContext double for
// exercising action handlers without a real execctx.Context, which needs a
// live store and coordinator. Tests construct one directly and set only the
// fields their handler under test reads.
type fakeExecutionContext struct {
	executionID string
	workflow    model.Workflow
	outputs     map[string]map[string]any
	credentials map[string]string
	settings    map[string]any
	ancestors   []string
	cancelled   bool
}

func newFakeExecutionContext() *fakeExecutionContext {
	return &fakeExecutionContext{
		executionID: "exec-1",
		workflow:    model.Workflow{ID: "wf-1", Settings: map[string]any{}},
		outputs:     map[string]map[string]any{},
		credentials: map[string]string{},
	}
}

func (f *fakeExecutionContext) ExecutionID() string { return f.executionID }

func (f *fakeExecutionContext) Workflow() model.Workflow { return f.workflow }

func (f *fakeExecutionContext) NodeOutput(nodeID string) (map[string]any, bool) {
	out, ok := f.outputs[nodeID]
	return out, ok
}

func (f *fakeExecutionContext) Credential(ref string) (string, bool) {
	v, ok := f.credentials[ref]
	return v, ok
}

func (f *fakeExecutionContext) Setting(key string, def any) any {
	if v, ok := f.workflow.Settings[key]; ok {
		return v
	}
	return def
}

func (f *fakeExecutionContext) SettingInt(key string, def int) int {
	v := f.Setting(key, def)
	if i, ok := v.(int); ok {
		return i
	}
	return def
}

func (f *fakeExecutionContext) SettingBool(key string, def bool) bool {
	v := f.Setting(key, def)
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func (f *fakeExecutionContext) Logger() handler.Logger { return noopLogger{} }

func (f *fakeExecutionContext) InvokeSubworkflow(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error) {
	return model.Execution{}, nil
}

func (f *fakeExecutionContext) Ancestors() []string { return f.ancestors }

func (f *fakeExecutionContext) Cancelled() bool { return f.cancelled }

// noopLogger discards everything; handlers under test only need something
// satisfying handler.Logger, not observable log output.
type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}

var _ handler.ExecutionContext = (*fakeExecutionContext)(nil)
