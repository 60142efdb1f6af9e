package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/dagflow"
)

// SaveCheckpoint appends a checkpoint row. Rows are never updated: a failed
// insert leaves the previous checkpoint authoritative.
func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint *dagflow.Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (id, run_id, payload, checkpoint_at)
		VALUES ($1, $2, $3, $4)`,
		checkpoint.ID, checkpoint.RunID, payload, checkpoint.CheckpointAt)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the newest checkpoint for a run, or (nil, nil) when
// the run has none.
func (s *Store) LoadCheckpoint(ctx context.Context, runID string) (*dagflow.Checkpoint, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM workflow_checkpoints
		WHERE run_id = $1
		ORDER BY checkpoint_at DESC, id DESC
		LIMIT 1`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dagflow/postgres: load checkpoint: %w", err)
	}
	var checkpoint dagflow.Checkpoint
	if err := json.Unmarshal(payload, &checkpoint); err != nil {
		return nil, fmt.Errorf("dagflow/postgres: unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// DeleteCheckpoints removes all checkpoint rows for a run.
func (s *Store) DeleteCheckpoints(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_checkpoints WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("dagflow/postgres: delete checkpoints: %w", err)
	}
	return nil
}
