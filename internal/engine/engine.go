// Package engine implements the workflow traversal engine: given a
// validated Workflow and an initial input, it walks the node/edge graph
// from its trigger frontier, dispatching each ready node to its
// registered Handler and gating downstream edges per the node's branch
// policy, until every reachable node has resolved.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowbase/workflow-engine/internal/credentials"
	"github.com/flowbase/workflow-engine/internal/execctx"
	"github.com/flowbase/workflow-engine/internal/handler"
	"github.com/flowbase/workflow-engine/internal/logpipeline"
	"github.com/flowbase/workflow-engine/internal/model"
	"github.com/flowbase/workflow-engine/internal/platform/logger"
	"github.com/flowbase/workflow-engine/internal/platform/telemetry"
	"github.com/flowbase/workflow-engine/internal/settings"
)

// WorkflowStore resolves a workflow id to its definition; satisfied by
// internal/store's Postgres-backed and in-memory implementations.
type WorkflowStore interface {
	GetByID(ctx context.Context, id string) (model.Workflow, error)
}

// ExecutionStore persists Execution records. The engine calls Save once
// per execution, after the run has finished.
type ExecutionStore interface {
	Save(ctx context.Context, exec model.Execution) error
}

// Engine orchestrates workflow execution: one Engine is shared across
// concurrent runs; per-run state lives in execctx.Context and the
// run struct, never on Engine itself (besides the in-flight index).
type Engine struct {
	workflows   WorkflowStore
	executions  ExecutionStore
	registry    *handler.Registry
	credStore   credentials.Store
	settings    settings.Store
	log         logger.Logger
	logPipeline *logpipeline.Pipeline
	metrics     *telemetry.Metrics

	mu     sync.RWMutex
	active map[string]*run
}

// New constructs an Engine. metrics may be nil (metrics become no-ops).
func New(
	workflows WorkflowStore,
	executions ExecutionStore,
	registry *handler.Registry,
	credStore credentials.Store,
	settingsStore settings.Store,
	log logger.Logger,
	pipeline *logpipeline.Pipeline,
	metrics *telemetry.Metrics,
) *Engine {
	return &Engine{
		workflows:   workflows,
		executions:  executions,
		registry:    registry,
		credStore:   credStore,
		settings:    settingsStore,
		log:         log,
		logPipeline: pipeline,
		metrics:     metrics,
		active:      make(map[string]*run),
	}
}

// Execute runs workflowID to completion (or cancellation/timeout) and
// returns the finished Execution record.
func (e *Engine) Execute(ctx context.Context, workflowID string, input map[string]any, trigger model.TriggerType) (model.Execution, error) {
	return e.executeWithAncestors(ctx, workflowID, input, trigger, nil)
}

// ExecuteAsync starts a run and returns its execution id immediately;
// the Execution record is finalized in the ExecutionStore when it
// completes, observable via FindByWorkflowID.
func (e *Engine) ExecuteAsync(ctx context.Context, workflowID string, input map[string]any, trigger model.TriggerType) (string, error) {
	wf, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return "", err
	}
	executionID := uuid.NewString()
	go func() {
		_, _ = e.runWorkflow(context.Background(), executionID, wf, input, trigger, nil)
	}()
	return executionID, nil
}

func (e *Engine) executeWithAncestors(ctx context.Context, workflowID string, input map[string]any, trigger model.TriggerType, ancestors []string) (model.Execution, error) {
	wf, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return model.Execution{}, err
	}
	return e.runWorkflow(ctx, uuid.NewString(), wf, input, trigger, ancestors)
}

// Cancel fires the cancellation token of a currently-running execution.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	r, ok := e.active[executionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("execution %s not found or already finished", executionID)
	}
	r.ec.Cancel()
	return nil
}

// FindByWorkflowID delegates to the ExecutionStore if it implements the
// optional lister interface; otherwise reports that listing is unsupported.
func (e *Engine) FindByWorkflowID(ctx context.Context, workflowID string) ([]model.Execution, error) {
	lister, ok := e.executions.(interface {
		FindByWorkflowID(ctx context.Context, workflowID string) ([]model.Execution, error)
	})
	if !ok {
		return nil, fmt.Errorf("execution store does not support listing by workflow id")
	}
	return lister.FindByWorkflowID(ctx, workflowID)
}

func (e *Engine) runWorkflow(
	ctx context.Context,
	executionID string,
	wf model.Workflow,
	input map[string]any,
	trigger model.TriggerType,
	ancestors []string,
) (model.Execution, error) {
	if err := wf.Validate(); err != nil {
		return model.Execution{}, err
	}

	exec := &model.Execution{
		ID:          executionID,
		WorkflowID:  wf.ID,
		Status:      model.StatusRunning,
		TriggerType: trigger,
		StartedAt:   time.Now(),
		Input:       input,
	}

	ec := execctx.New(ctx, executionID, wf, input, e.credStore, e.settings, e.log, e.logPipeline, e.invoke, ancestors)
	r := newRun(e, wf, ec, exec)

	e.mu.Lock()
	e.active[executionID] = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, executionID)
		e.mu.Unlock()
	}()

	if e.metrics != nil {
		e.metrics.ExecutionsStarted.Inc()
	}
	e.logPipelineEmit(ec, logpipeline.LevelInfo, logpipeline.CategoryExecutionStart, "execution started", nil)

	r.run()

	exec.FinishedAt = time.Now()
	switch {
	case ec.Cancelled():
		exec.Status = model.StatusCancelled
	case r.failure != nil:
		exec.Status = model.StatusFailed
		exec.ErrorMessage = r.failure.Error()
	default:
		exec.Status = model.StatusSuccess
	}
	exec.Output = r.terminalOutputs()

	if e.metrics != nil {
		e.metrics.ExecutionsCompleted.WithLabelValues(string(exec.Status)).Inc()
	}
	e.logPipelineEmit(ec, logpipeline.LevelInfo, logpipeline.CategoryExecutionEnd, "execution finished", map[string]any{"status": string(exec.Status)})

	if e.executions != nil {
		_ = e.executions.Save(context.Background(), *exec)
	}

	if exec.Status == model.StatusFailed {
		return *exec, r.failure
	}
	return *exec, nil
}

func (e *Engine) logPipelineEmit(ec *execctx.Context, level logpipeline.Level, cat logpipeline.Category, msg string, logCtx map[string]any) {
	if e.logPipeline == nil {
		return
	}
	ec.EmitLog(level, cat, msg, logCtx)
}

// invoke is the execctx.SubworkflowInvoker wired into every execution's
// context, letting the subworkflow handler recurse back into the engine
// without execctx importing engine (which would cycle).
func (e *Engine) invoke(ctx context.Context, workflowID string, input map[string]any, ancestors []string) (model.Execution, error) {
	return e.executeWithAncestors(ctx, workflowID, input, model.TriggerSubworkflow, ancestors)
}
