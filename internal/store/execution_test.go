package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestPostgresSaveExecution(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	exec := model.Execution{
		ID:          "exec-1",
		WorkflowID:  "wf-1",
		Status:      model.StatusSuccess,
		TriggerType: model.TriggerManual,
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
		NodeExecutions: []model.NodeExecution{
			{NodeID: "start", NodeName: "Start", NodeType: "manualTrigger", Status: model.StatusSuccess, StartedAt: time.Now(), FinishedAt: time.Now()},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO executions").
		WithArgs(exec.ID, exec.WorkflowID, string(exec.Status), string(exec.TriggerType),
			exec.StartedAt, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), exec.ErrorMessage).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM node_executions").
		WithArgs(exec.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO node_executions").
		WithArgs(exec.ID, 0, "start", "Start", "manualTrigger", string(model.StatusSuccess),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	pg := NewPostgresExecutionStore(mock)
	err = pg.Save(context.Background(), exec)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryExecutionStore(t *testing.T) {
	s := NewMemoryExecutionStore()
	exec := model.Execution{ID: "exec-1", WorkflowID: "wf-1", Status: model.StatusSuccess, StartedAt: time.Now()}

	require.NoError(t, s.Save(context.Background(), exec))

	got, err := s.GetByID(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, exec.WorkflowID, got.WorkflowID)

	list, err := s.FindByWorkflowID(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetByID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMemoryWorkflowStore(t *testing.T) {
	s := NewMemoryWorkflowStore()
	wf := model.Workflow{ID: "wf-1", Name: "Weather Check"}
	s.Put(wf)

	got, err := s.GetByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Weather Check", got.Name)

	s.Delete("wf-1")
	_, err = s.GetByID(context.Background(), "wf-1")
	assert.Error(t, err)
}
