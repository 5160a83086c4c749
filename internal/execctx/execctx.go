// Package execctx implements the per-run ExecutionContext: the ephemeral
// state object owned exclusively by one execution, never shared across
// concurrent runs.
package execctx

import (
	"context"
	"sync"

	"github.com/flowbase/workflow-engine/internal/credentials"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/logpipeline"
	"github.com/flowbase/workflow-engine/internal/model"
	"github.com/flowbase/workflow-engine/internal/platform/logger"
	"github.com/flowbase/workflow-engine/internal/settings"
)

// SubworkflowInvoker runs a nested execution and is supplied by the engine
// so execctx doesn't import it back (the engine imports execctx).
type SubworkflowInvoker func(ctx context.Context, workflowID string, input map[string]any, ancestors []string) (model.Execution, error)

// Context is the per-run ExecutionContext described by the data model: a
// single execution's id, its workflow, the initial input, a write-once
// per-node output map, and accessors for credentials/settings/logging,
// plus the cancellation token and subworkflow ancestor chain.
type Context struct {
	executionID  string
	workflow     model.Workflow
	initialInput map[string]any

	mu      sync.RWMutex
	outputs map[string]map[string]any

	credStore   credentials.Store
	settings    settings.Store
	log         logger.Logger
	logPipeline *logpipeline.Pipeline

	cancel    context.CancelFunc
	ctx       context.Context
	invoker   SubworkflowInvoker
	ancestors []string
}

// New constructs a Context for one execution. parentCtx is typically
// context.Background() for a top-level execute, or the parent's ctx for a
// subworkflow invocation (so outer cancellation propagates).
func New(
	parentCtx context.Context,
	executionID string,
	workflow model.Workflow,
	initialInput map[string]any,
	credStore credentials.Store,
	settingsStore settings.Store,
	log logger.Logger,
	pipeline *logpipeline.Pipeline,
	invoker SubworkflowInvoker,
	ancestors []string,
) *Context {
	ctx, cancel := context.WithCancel(parentCtx)
	return &Context{
		executionID:  executionID,
		workflow:     workflow,
		initialInput: initialInput,
		outputs:      make(map[string]map[string]any),
		credStore:    credStore,
		settings:     settingsStore,
		log:          log,
		logPipeline:  pipeline,
		cancel:       cancel,
		ctx:          ctx,
		invoker:      invoker,
		ancestors:    ancestors,
	}
}

// Done returns the cancellation channel; handlers select on this at I/O
// boundaries to honor the context's single cancellation token.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Ctx returns the underlying context.Context, for passing to I/O calls
// (HTTP clients, DB queries) that accept one directly.
func (c *Context) Ctx() context.Context { return c.ctx }

// Cancel fires the execution's single cancellation token.
func (c *Context) Cancel() { c.cancel() }

// Cancelled reports whether the context has been cancelled.
func (c *Context) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Context) ExecutionID() string    { return c.executionID }
func (c *Context) Workflow() model.Workflow { return c.workflow }
func (c *Context) InitialInput() map[string]any { return c.initialInput }

// PublishNodeOutput records nodeID's output. Per the data-model invariant,
// this may only happen once per node id; a second call is a programming
// error in the engine and is ignored rather than corrupting state already
// read by downstream handlers.
func (c *Context) PublishNodeOutput(nodeID string, output map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.outputs[nodeID]; exists {
		return
	}
	c.outputs[nodeID] = output
}

// NodeOutput returns nodeID's published output, if any.
func (c *Context) NodeOutput(nodeID string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[nodeID]
	return out, ok
}

// Credential resolves ref (an id or a name) to its decrypted secret.
func (c *Context) Credential(ref string) (string, bool) {
	if c.credStore == nil {
		return "", false
	}
	if val, ok := c.credStore.GetDecryptedByID(ref); ok {
		return val, true
	}
	return c.credStore.GetDecryptedByName(ref)
}

func (c *Context) Setting(key string, def any) any {
	if c.settings == nil {
		return def
	}
	if s, ok := def.(string); ok {
		return c.settings.Get(key, s)
	}
	return def
}

func (c *Context) SettingInt(key string, def int) int {
	if c.settings == nil {
		return def
	}
	return c.settings.GetInt(key, def)
}

func (c *Context) SettingBool(key string, def bool) bool {
	if c.settings == nil {
		return def
	}
	return c.settings.GetBool(key, def)
}

func (c *Context) SettingDouble(key string, def float64) float64 {
	if c.settings == nil {
		return def
	}
	return c.settings.GetDouble(key, def)
}

// Logger returns the engine's operational logger, scoped to this
// execution, as the narrower handler.Logger interface handlers see.
func (c *Context) Logger() handler.Logger {
	if c.log == nil {
		return nil
	}
	return c.log.WithFields(map[string]interface{}{"execution_id": c.executionID})
}

// EmitLog appends a LogEntry to the execution's log pipeline.
func (c *Context) EmitLog(level logpipeline.Level, category logpipeline.Category, message string, logCtx map[string]any) {
	if c.logPipeline == nil {
		return
	}
	c.logPipeline.Emit(c.executionID, level, category, message, logCtx)
}

// Ancestors returns the chain of workflow ids currently executing as
// subworkflow invocations, nearest ancestor last, used by the subworkflow
// handler's recursion guard (resolving the Open Question in favor of
// tracking the full chain rather than only the immediate parent).
func (c *Context) Ancestors() []string { return c.ancestors }

// InvokeSubworkflow runs a nested execution via the engine-supplied
// invoker, appending this execution's workflow id to the ancestor chain.
func (c *Context) InvokeSubworkflow(ctx context.Context, workflowID string, input map[string]any) (model.Execution, error) {
	nextAncestors := append(append([]string{}, c.ancestors...), c.workflow.ID)
	return c.invoker(ctx, workflowID, input, nextAncestors)
}

var _ handler.ExecutionContext = (*Context)(nil)
