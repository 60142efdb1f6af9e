package dagflow

import (
	"context"
)

// Checkpointer persists and restores run state snapshots. Saves must be
// atomic from the caller's perspective: either the full snapshot is durably
// recorded or the prior checkpoint remains authoritative.
type Checkpointer interface {
	// SaveCheckpoint durably records the snapshot.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint loads the latest checkpoint for a run. Returns
	// (nil, nil) if the run has no checkpoint.
	LoadCheckpoint(ctx context.Context, runID string) (*Checkpoint, error)

	// DeleteCheckpoints removes all checkpoint data for a run.
	DeleteCheckpoints(ctx context.Context, runID string) error
}
