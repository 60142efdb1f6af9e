package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/dagflow"
)

// CreateRun persists a new run record.
func (s *Store) CreateRun(ctx context.Context, run *dagflow.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, graph_name, status, error, waiting_node_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.GraphName, string(run.Status), run.Error, run.WaitingNodeID,
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*dagflow.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, graph_name, status, error, waiting_node_id, created_at, updated_at
		FROM workflow_runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dagflow.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dagflow/postgres: get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists changes to an existing run.
func (s *Store) UpdateRun(ctx context.Context, run *dagflow.Run) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $2, error = $3, waiting_node_id = $4, updated_at = NOW()
		WHERE id = $1`,
		run.ID, string(run.Status), run.Error, run.WaitingNodeID)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: update run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("dagflow/postgres: update run: %w", err)
	}
	if affected == 0 {
		return dagflow.ErrRunNotFound
	}
	return nil
}

// DeleteRun removes a run record.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("dagflow/postgres: delete run: %w", err)
	}
	if affected == 0 {
		return dagflow.ErrRunNotFound
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*dagflow.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, graph_name, status, error, waiting_node_id, created_at, updated_at
		FROM workflow_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("dagflow/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*dagflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("dagflow/postgres: list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dagflow/postgres: list runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*dagflow.Run, error) {
	var run dagflow.Run
	var status string
	if err := row.Scan(&run.ID, &run.GraphName, &status, &run.Error,
		&run.WaitingNodeID, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Status = dagflow.RunStatus(status)
	return &run, nil
}
