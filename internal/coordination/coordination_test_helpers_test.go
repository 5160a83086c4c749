package coordination

import (
	"context"

	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// fakeExecutionContext is a minimal handler.ExecutionContext double,
// mirroring internal/actions' own test double (test files can't be
// shared across packages), for exercising coordination handlers without
// a real execctx.Context.
type fakeExecutionContext struct {
	invoker     func(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error)
	ancestors   []string
	settingInts map[string]int
}

func (f *fakeExecutionContext) ExecutionID() string      { return "exec-1" }
func (f *fakeExecutionContext) Workflow() model.Workflow { return model.Workflow{ID: "wf-1"} }
func (f *fakeExecutionContext) NodeOutput(string) (map[string]any, bool) {
	return nil, false
}
func (f *fakeExecutionContext) Credential(string) (string, bool) { return "", false }
func (f *fakeExecutionContext) Setting(_ string, def any) any    { return def }
func (f *fakeExecutionContext) SettingInt(key string, def int) int {
	if f.settingInts != nil {
		if v, ok := f.settingInts[key]; ok {
			return v
		}
	}
	return def
}
func (f *fakeExecutionContext) SettingBool(_ string, def bool) bool { return def }
func (f *fakeExecutionContext) Logger() handler.Logger             { return noopLogger{} }
func (f *fakeExecutionContext) InvokeSubworkflow(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error) {
	if f.invoker != nil {
		return f.invoker(ctx, workflowID, input)
	}
	return model.Execution{}, nil
}
func (f *fakeExecutionContext) Ancestors() []string { return f.ancestors }
func (f *fakeExecutionContext) Cancelled() bool     { return false }

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{}) {}
func (noopLogger) Info(msg string, fields ...interface{})  {}
func (noopLogger) Warn(msg string, fields ...interface{})  {}
func (noopLogger) Error(msg string, fields ...interface{}) {}

var _ handler.ExecutionContext = (*fakeExecutionContext)(nil)

// echoHandler is a trivial operation body: it copies input to output,
// optionally adding a marker key, or fails the first failN calls and then
// succeeds (used by retry tests; a failN larger than the number of calls
// makes every call fail, and failN<=0 never fails).
type echoHandler struct {
	typ    string
	failN  int
	calls  *int
	marker string
}

func (h echoHandler) NodeType() string { return h.typ }

func (h echoHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	if h.calls != nil {
		*h.calls++
	}
	out := make(map[string]any, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	if h.marker != "" {
		out[h.marker] = true
	}
	if h.calls != nil && *h.calls <= h.failN {
		return out, model.NewHandlerFailureError("echo failure", nil)
	}
	return out, nil
}

var _ handler.Handler = echoHandler{}
