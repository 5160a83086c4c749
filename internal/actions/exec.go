package actions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"github.com/flowbase/workflow-engine/internal/dynvalue"
	"github.com/flowbase/workflow-engine/internal/expression"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/model"
)

// ExecuteCommandHandler runs a single shell command as a child process,
// per §6's executeCommand supplement: present in spec.md's node-type
// identifier set but undetailed in §4, implemented in the teacher's
// handler idiom (timeout, captured stdout/stderr, exit code). Argument
// tokenizing uses google/shlex rather than handing the raw string to a
// shell, so the command never runs through sh -c and its argv is exactly
// what shlex parses.
type ExecuteCommandHandler struct{}

func NewExecuteCommandHandler() *ExecuteCommandHandler { return &ExecuteCommandHandler{} }

func (*ExecuteCommandHandler) NodeType() string { return "executeCommand" }

func (*ExecuteCommandHandler) Execute(ctx context.Context, node model.Node, input map[string]any, ec handler.ExecutionContext) (map[string]any, error) {
	exprCtx := expression.NewContext(input, ec.Workflow().Settings, nil, ec.Credential)

	commandLine := expression.Interpolate(dynvalue.GetString(node.Parameters, "command", ""), exprCtx)
	if commandLine == "" {
		return nil, model.NewInvalidWorkflowError("executeCommand node missing command parameter")
	}

	args, err := shlex.Split(commandLine)
	if err != nil || len(args) == 0 {
		return nil, model.NewHandlerFailureError("executeCommand node: could not tokenize command", err)
	}

	timeout := time.Duration(dynvalue.GetInt(node.Parameters, "timeoutSeconds", 30)) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	if workingDir := dynvalue.GetString(node.Parameters, "workingDirectory", ""); workingDir != "" {
		cmd.Dir = workingDir
	}
	if env := dynvalue.GetMap(node.Parameters, "env"); len(env) > 0 {
		cmd.Env = append(os.Environ(), envStrings(env)...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	out := map[string]any{
		"stdout":   stdout.String(),
		"stderr":   stderr.String(),
		"exitCode": exitCode,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return out, model.NewTimeoutError("executeCommand node: command exceeded timeout")
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); ok {
			// A non-zero exit is data, not a handler failure: the caller
			// decides whether exitCode != 0 should fail the run (e.g. via
			// a downstream if node), matching the teacher's pattern of
			// surfacing process failures as output rather than errors.
			return out, nil
		}
		return out, model.NewHandlerFailureError("executeCommand node: failed to start command", runErr)
	}

	return out, nil
}

func envStrings(env map[string]any) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%v", k, v))
	}
	return out
}

var _ handler.Handler = (*ExecuteCommandHandler)(nil)
