package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepnoodle-ai/dagflow"
)

// Append records a progress event.
func (s *Store) Append(ctx context.Context, event *dagflow.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO progress_events (id, run_id, payload, created_at)
		VALUES ($1, $2, $3, $4)`,
		event.ID, event.RunID, payload, event.Time)
	if err != nil {
		return fmt.Errorf("dagflow/postgres: append event: %w", err)
	}
	return nil
}

// DeleteByRun removes all of a run's events.
func (s *Store) DeleteByRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM progress_events WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("dagflow/postgres: delete events: %w", err)
	}
	return nil
}

// ListByRun returns a run's events in append order.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]*dagflow.ProgressEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM progress_events
		WHERE run_id = $1 ORDER BY created_at ASC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("dagflow/postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []*dagflow.ProgressEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("dagflow/postgres: list events: %w", err)
		}
		var event dagflow.ProgressEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("dagflow/postgres: unmarshal event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dagflow/postgres: list events: %w", err)
	}
	return events, nil
}
