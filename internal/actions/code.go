package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

const (
	maxScriptLength  = 1024 * 1024
	defaultJSTimeout = 10 * time.Second
	maxJSTimeout     = 60 * time.Second
)

// forbiddenJSGlobals are stripped from every runtime before a script
// runs, per stherrien-gorax's sandbox: no network, no filesystem, no
// process control from inside user code.
var forbiddenJSGlobals = []string{
	"require", "process", "global", "globalThis",
	"Function", "eval", "WebAssembly",
}

var forbiddenJSPatterns = []string{
	"new Function", "eval(", "constructor[", ".constructor(", "__proto__",
}

// CodeHandler runs the node's "code" parameter as JavaScript in a fresh,
// sandboxed goja runtime per invocation. The teacher's own code_node.go
// evaluates a hand-rolled expression language instead of real JS; this
// handler follows SPEC_FULL.md's domain-stack binding and reimplements
// it on dop251/goja, grounded on stherrien-gorax's
// executor/javascript/{sandbox,engine}.go sandboxing approach scaled down
// to one runtime per call rather than a pooled, multi-tenant engine.
type CodeHandler struct{}

func NewCodeHandler() *CodeHandler { return &CodeHandler{} }

func (*CodeHandler) NodeType() string { return "code" }

func (*CodeHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	script := dynvalue.GetString(node.Parameters, "code", "")
	if strings.TrimSpace(script) == "" {
		return nil, model.NewInvalidWorkflowError("code node missing code parameter")
	}
	if len(script) > maxScriptLength {
		return nil, model.NewHandlerFailureError("code node: script exceeds size limit", nil)
	}
	if err := validateScript(script); err != nil {
		return nil, model.NewHandlerFailureError("code node: sandbox violation", err)
	}

	timeout := defaultJSTimeout
	if secs := dynvalue.GetInt(node.Parameters, "timeoutSeconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
		if timeout > maxJSTimeout {
			timeout = maxJSTimeout
		}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vm := goja.New()
	vm.SetMaxCallStackSize(1000)
	for _, name := range forbiddenJSGlobals {
		_ = vm.Set(name, goja.Undefined())
	}
	logs := installConsole(vm)

	if err := vm.Set("input", input); err != nil {
		return nil, model.NewHandlerFailureError("code node: failed to inject input", err)
	}
	execCtx := map[string]any{
		"executionId": ec.ExecutionID(),
		"settings":    ec.Workflow().Settings,
	}
	if err := vm.Set("context", execCtx); err != nil {
		return nil, model.NewHandlerFailureError("code node: failed to inject context", err)
	}

	wrapped := "(function() {\n" + script + "\n})();"

	type runResult struct {
		val goja.Value
		err error
	}
	resultCh := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- runResult{err: fmt.Errorf("script panicked: %v", r)}
			}
		}()
		val, err := vm.RunString(wrapped)
		resultCh <- runResult{val: val, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, model.NewHandlerFailureError("code node: script error", res.err)
		}
		return extractResult(res.val, logs), nil
	case <-runCtx.Done():
		vm.Interrupt("execution timeout")
		<-resultCh
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, model.NewTimeoutError("code node: script exceeded timeout")
		}
		return nil, model.NewCancelledError("code node: execution cancelled")
	}
}

// validateScript rejects patterns that defeat the global-removal sandbox
// even once the dangerous globals are gone, matching stherrien-gorax's
// ValidateScript denylist.
func validateScript(script string) error {
	for _, pattern := range forbiddenJSPatterns {
		if strings.Contains(script, pattern) {
			return fmt.Errorf("forbidden pattern %q", pattern)
		}
	}
	return nil
}

// installConsole wires console.log/info/warn/error into a capture slice
// instead of stdout, so a script's logging surfaces in the node's output
// rather than the host process's console.
func installConsole(vm *goja.Runtime) *[]string {
	logs := &[]string{}
	console := vm.NewObject()
	logFn := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			*logs = append(*logs, fmt.Sprintf("[%s] %s", level, strings.Join(parts, " ")))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFn("log"))
	_ = console.Set("info", logFn("info"))
	_ = console.Set("warn", logFn("warn"))
	_ = console.Set("error", logFn("error"))
	_ = vm.Set("console", console)
	return logs
}

// extractResult exports the script's return value into a plain map[string]any
// node output, wrapping non-map results under "result" so the handler
// contract's return shape is always satisfied.
func extractResult(val goja.Value, logs *[]string) map[string]any {
	out := map[string]any{}
	if len(*logs) > 0 {
		out["logs"] = *logs
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return out
	}
	exported := val.Export()
	if m, ok := exported.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	out["result"] = exported
	return out
}

var _ handler.Handler = (*CodeHandler)(nil)
