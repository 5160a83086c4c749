package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowbase/workflow-engine/internal/model"
)

// MemoryWorkflowStore is an in-memory WorkflowStore, used in tests and as
// the default store when cmd/engine runs without a configured database.
type MemoryWorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow
}

// NewMemoryWorkflowStore returns an empty MemoryWorkflowStore.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[string]model.Workflow)}
}

// Put registers or replaces a workflow definition.
func (s *MemoryWorkflowStore) Put(wf model.Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
}

// Delete removes a workflow definition.
func (s *MemoryWorkflowStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
}

// GetByID satisfies engine.WorkflowStore.
func (s *MemoryWorkflowStore) GetByID(_ context.Context, id string) (model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return model.Workflow{}, fmt.Errorf("workflow %q not found", id)
	}
	return wf, nil
}

// MemoryExecutionStore is an in-memory ExecutionStore, used in tests and as
// the default store when cmd/engine runs without a configured database.
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]model.Execution
}

// NewMemoryExecutionStore returns an empty MemoryExecutionStore.
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{executions: make(map[string]model.Execution)}
}

// Save satisfies engine.ExecutionStore.
func (s *MemoryExecutionStore) Save(_ context.Context, exec model.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec
	return nil
}

// GetByID returns a previously-saved Execution.
func (s *MemoryExecutionStore) GetByID(_ context.Context, id string) (model.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return model.Execution{}, fmt.Errorf("execution %q not found", id)
	}
	return exec, nil
}

// FindByWorkflowID lists saved executions of workflowID, most recent first,
// satisfying engine.Engine's optional lister interface.
func (s *MemoryExecutionStore) FindByWorkflowID(_ context.Context, workflowID string) ([]model.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Execution
	for _, exec := range s.executions {
		if exec.WorkflowID == workflowID {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
