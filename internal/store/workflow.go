package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/flowbase/workflow-engine/internal/model"
)

// GetByID hydrates a Workflow from three tables (header, nodes, edges)
// inside a read-only transaction so the three SELECTs see a consistent
// snapshot, mirroring the teacher storage's GetWorkflow.
func (s *PostgresWorkflowStore) GetByID(ctx context.Context, id string) (model.Workflow, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return model.Workflow{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	wf := model.Workflow{ID: id}
	var settingsJSON []byte
	err = tx.QueryRow(timeoutCtx, `
		SELECT name, description, settings, active, created_at, updated_at
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL`,
		id).Scan(&wf.Name, &wf.Description, &settingsJSON, &wf.Active, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return model.Workflow{}, err
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &wf.Settings); err != nil {
			return model.Workflow{}, fmt.Errorf("unmarshal workflow settings: %w", err)
		}
	}

	nodes, err := hydrateNodes(timeoutCtx, tx, id)
	if err != nil {
		return model.Workflow{}, err
	}
	wf.Nodes = nodes

	edges, err := hydrateEdges(timeoutCtx, tx, id)
	if err != nil {
		return model.Workflow{}, err
	}
	wf.Edges = edges

	return wf, tx.Commit(timeoutCtx)
}

func hydrateNodes(ctx context.Context, q querier, workflowID string) ([]model.Node, error) {
	rows, err := q.Query(ctx, `
		SELECT id, type, name, position_x, position_y, parameters,
		       credential_ref, disabled, notes
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY id`,
		workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []model.Node
	for rows.Next() {
		var n model.Node
		var paramsJSON []byte
		if err := rows.Scan(
			&n.ID, &n.Type, &n.Name, &n.PositionX, &n.PositionY, &paramsJSON,
			&n.CredentialRef, &n.Disabled, &n.Notes,
		); err != nil {
			return nil, err
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &n.Parameters); err != nil {
				return nil, fmt.Errorf("unmarshal node %q parameters: %w", n.ID, err)
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func hydrateEdges(ctx context.Context, q querier, workflowID string) ([]model.Edge, error) {
	rows, err := q.Query(ctx, `
		SELECT id, source_node_id, source_handle, target_node_id, target_handle
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY id`,
		workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.SourceHandle, &e.TargetNodeID, &e.TargetHandle); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Upsert saves wf's header and replaces all of its nodes/edges in a single
// read-committed transaction, the same delete-and-reinsert strategy the
// teacher storage uses for child rows: simpler write path, full replace
// per save.
func (s *PostgresWorkflowStore) Upsert(ctx context.Context, wf model.Workflow) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction for upsert: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	settingsJSON, err := json.Marshal(wf.Settings)
	if err != nil {
		return fmt.Errorf("marshal workflow settings: %w", err)
	}

	_, err = tx.Exec(timeoutCtx, `
		INSERT INTO workflows (id, name, description, settings, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			settings = EXCLUDED.settings,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL`,
		wf.ID, wf.Name, wf.Description, settingsJSON, wf.Active, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert workflow header: %w", err)
	}

	if _, err := tx.Exec(timeoutCtx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete old edges: %w", err)
	}
	if _, err := tx.Exec(timeoutCtx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, wf.ID); err != nil {
		return fmt.Errorf("delete old nodes: %w", err)
	}

	for _, n := range wf.Nodes {
		paramsJSON, err := json.Marshal(n.Parameters)
		if err != nil {
			return fmt.Errorf("marshal node %q parameters: %w", n.ID, err)
		}
		_, err = tx.Exec(timeoutCtx, `
			INSERT INTO workflow_nodes (
				workflow_id, id, type, name, position_x, position_y,
				parameters, credential_ref, disabled, notes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			wf.ID, n.ID, n.Type, n.Name, n.PositionX, n.PositionY,
			paramsJSON, n.CredentialRef, n.Disabled, n.Notes)
		if err != nil {
			return fmt.Errorf("insert node %q: %w", n.ID, err)
		}
	}

	for _, e := range wf.Edges {
		_, err = tx.Exec(timeoutCtx, `
			INSERT INTO workflow_edges (
				workflow_id, id, source_node_id, source_handle, target_node_id, target_handle
			) VALUES ($1, $2, $3, $4, $5, $6)`,
			wf.ID, e.ID, e.SourceNodeID, e.SourceHandle, e.TargetNodeID, e.TargetHandle)
		if err != nil {
			return fmt.Errorf("insert edge %q: %w", e.ID, err)
		}
	}

	return tx.Commit(timeoutCtx)
}

// Delete soft-deletes a workflow's header and hard-deletes its child rows,
// mirroring the teacher storage's DeleteWorkflow.
func (s *PostgresWorkflowStore) Delete(ctx context.Context, id string) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction for delete: %w", err)
	}
	defer tx.Rollback(timeoutCtx)

	if _, err := tx.Exec(timeoutCtx, `DELETE FROM workflow_edges WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete edges: %w", err)
	}
	if _, err := tx.Exec(timeoutCtx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}

	tag, err := tx.Exec(timeoutCtx, `
		UPDATE workflows SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("soft delete workflow header: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(timeoutCtx)
}
