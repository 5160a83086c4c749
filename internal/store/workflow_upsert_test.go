package store

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbase/workflow-engine/internal/model"
)

func TestPostgresUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	wf := model.Workflow{
		ID:   "wf-1",
		Name: "Weather Check",
		Nodes: []model.Node{
			{ID: "start", Type: "manualTrigger", Name: "Start"},
		},
		Edges: []model.Edge{
			{ID: "e1", SourceNodeID: "start", TargetNodeID: "fetch"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO workflows").
		WithArgs(wf.ID, wf.Name, wf.Description, pgxmock.AnyArg(), wf.Active, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM workflow_edges").
		WithArgs(wf.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM workflow_nodes").
		WithArgs(wf.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO workflow_nodes").
		WithArgs(wf.ID, "start", "manualTrigger", "Start", 0.0, 0.0, pgxmock.AnyArg(), "", false, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO workflow_edges").
		WithArgs(wf.ID, "e1", "start", "", "fetch", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	pg := NewPostgresWorkflowStore(mock)
	err = pg.Upsert(context.Background(), wf)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM workflow_edges").
		WithArgs("wf-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM workflow_nodes").
		WithArgs("wf-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("UPDATE workflows").
		WithArgs(pgxmock.AnyArg(), "wf-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	pg := NewPostgresWorkflowStore(mock)
	err = pg.Delete(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
