package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/flowbase/workflow-engine/internal/model"
)

// Save upserts exec's header and replaces its NodeExecutions, the same
// delete-and-reinsert shape used for workflow child rows: the engine calls
// Save once per execution (at completion), so a full replace per call never
// runs more than once per row.
func (s *PostgresExecutionStore) Save(ctx context.Context, exec model.Execution) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction for execution save: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	inputJSON, err := json.Marshal(exec.Input)
	if err != nil {
		return fmt.Errorf("marshal execution input: %w", err)
	}
	outputJSON, err := json.Marshal(exec.Output)
	if err != nil {
		return fmt.Errorf("marshal execution output: %w", err)
	}

	_, err = tx.Exec(timeoutCtx, `
		INSERT INTO executions (
			id, workflow_id, status, trigger_type, started_at, finished_at,
			input, output, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			output = EXCLUDED.output,
			error_message = EXCLUDED.error_message`,
		exec.ID, exec.WorkflowID, string(exec.Status), string(exec.TriggerType),
		exec.StartedAt, nullableTime(exec.FinishedAt), inputJSON, outputJSON, exec.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert execution header: %w", err)
	}

	if _, err := tx.Exec(timeoutCtx, `DELETE FROM node_executions WHERE execution_id = $1`, exec.ID); err != nil {
		return fmt.Errorf("delete old node executions: %w", err)
	}

	for i, ne := range exec.NodeExecutions {
		inJSON, err := json.Marshal(ne.Input)
		if err != nil {
			return fmt.Errorf("marshal node execution %q input: %w", ne.NodeID, err)
		}
		outJSON, err := json.Marshal(ne.Output)
		if err != nil {
			return fmt.Errorf("marshal node execution %q output: %w", ne.NodeID, err)
		}
		_, err = tx.Exec(timeoutCtx, `
			INSERT INTO node_executions (
				execution_id, seq, node_id, node_name, node_type, status,
				started_at, finished_at, input, output, error_message
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			exec.ID, i, ne.NodeID, ne.NodeName, ne.NodeType, string(ne.Status),
			ne.StartedAt, nullableTime(ne.FinishedAt), inJSON, outJSON, ne.ErrorMessage)
		if err != nil {
			return fmt.Errorf("insert node execution %q: %w", ne.NodeID, err)
		}
	}

	return tx.Commit(timeoutCtx)
}

// GetByID hydrates one Execution and its NodeExecutions, in run order.
func (s *PostgresExecutionStore) GetByID(ctx context.Context, id string) (model.Execution, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exec, err := scanExecutionHeader(timeoutCtx, s.db, id)
	if err != nil {
		return model.Execution{}, err
	}

	nodeExecs, err := hydrateNodeExecutions(timeoutCtx, s.db, id)
	if err != nil {
		return model.Execution{}, err
	}
	exec.NodeExecutions = nodeExecs
	return exec, nil
}

// FindByWorkflowID lists executions of workflowID, most recent first,
// satisfying engine.Engine's optional lister interface.
func (s *PostgresExecutionStore) FindByWorkflowID(ctx context.Context, workflowID string) ([]model.Execution, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Scanning a flat id list is the one query in this package simple
	// enough for scany's reflection-based Select to pull its weight over
	// a hand-rolled rows.Next loop.
	var ids []string
	if err := pgxscan.Select(timeoutCtx, s.db, &ids, `
		SELECT id FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC`,
		workflowID); err != nil {
		return nil, err
	}

	execs := make([]model.Execution, 0, len(ids))
	for _, id := range ids {
		exec, err := s.GetByID(timeoutCtx, id)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, nil
}

func scanExecutionHeader(ctx context.Context, q querier, id string) (model.Execution, error) {
	var exec model.Execution
	var status, trigger string
	var finishedAt *time.Time
	var inputJSON, outputJSON []byte

	err := q.QueryRow(ctx, `
		SELECT id, workflow_id, status, trigger_type, started_at, finished_at,
		       input, output, error_message
		FROM executions WHERE id = $1`,
		id).Scan(&exec.ID, &exec.WorkflowID, &status, &trigger, &exec.StartedAt, &finishedAt,
		&inputJSON, &outputJSON, &exec.ErrorMessage)
	if err != nil {
		return model.Execution{}, err
	}
	exec.Status = model.Status(status)
	exec.TriggerType = model.TriggerType(trigger)
	if finishedAt != nil {
		exec.FinishedAt = *finishedAt
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &exec.Input); err != nil {
			return model.Execution{}, fmt.Errorf("unmarshal execution input: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &exec.Output); err != nil {
			return model.Execution{}, fmt.Errorf("unmarshal execution output: %w", err)
		}
	}
	return exec, nil
}

func hydrateNodeExecutions(ctx context.Context, q querier, executionID string) ([]model.NodeExecution, error) {
	rows, err := q.Query(ctx, `
		SELECT node_id, node_name, node_type, status, started_at, finished_at,
		       input, output, error_message
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY seq`,
		executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NodeExecution
	for rows.Next() {
		var ne model.NodeExecution
		var status string
		var finishedAt *time.Time
		var inJSON, outJSON []byte
		if err := rows.Scan(&ne.NodeID, &ne.NodeName, &ne.NodeType, &status, &ne.StartedAt, &finishedAt,
			&inJSON, &outJSON, &ne.ErrorMessage); err != nil {
			return nil, err
		}
		ne.Status = model.Status(status)
		if finishedAt != nil {
			ne.FinishedAt = *finishedAt
		}
		if len(inJSON) > 0 {
			if err := json.Unmarshal(inJSON, &ne.Input); err != nil {
				return nil, fmt.Errorf("unmarshal node execution %q input: %w", ne.NodeID, err)
			}
		}
		if len(outJSON) > 0 {
			if err := json.Unmarshal(outJSON, &ne.Output); err != nil {
				return nil, fmt.Errorf("unmarshal node execution %q output: %w", ne.NodeID, err)
			}
		}
		out = append(out, ne)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
