package dagflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileCheckpointerRoundTrip(t *testing.T) {
	ctx := context.Background()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	runID := NewRunID()

	missing, err := checkpointer.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.Nil(t, missing)

	first := &Checkpoint{
		ID:        NewCheckpointID(),
		RunID:     runID,
		GraphName: "etl",
		Status:    string(RunStatusRunning),
		NodeStates: map[string]*NodeState{
			"fetch": {NodeID: "fetch", Status: NodeStatusRunning},
		},
		CheckpointAt: time.Now(),
	}
	require.NoError(t, checkpointer.SaveCheckpoint(ctx, first))

	second := &Checkpoint{
		ID:        NewCheckpointID(),
		RunID:     runID,
		GraphName: "etl",
		Status:    string(RunStatusCompleted),
		NodeStates: map[string]*NodeState{
			"fetch": {NodeID: "fetch", Status: NodeStatusCompleted, Output: "42 rows"},
		},
		CheckpointAt: time.Now(),
	}
	require.NoError(t, checkpointer.SaveCheckpoint(ctx, second))

	latest, err := checkpointer.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, string(RunStatusCompleted), latest.Status)
	require.Equal(t, NodeStatusCompleted, latest.NodeStates["fetch"].Status)
	require.Equal(t, "42 rows", latest.NodeStates["fetch"].Output)

	require.NoError(t, checkpointer.DeleteCheckpoints(ctx, runID))
	gone, err := checkpointer.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestFileCheckpointerKeepsHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(dir)
	require.NoError(t, err)

	runID := NewRunID()
	for range 3 {
		require.NoError(t, checkpointer.SaveCheckpoint(ctx, &Checkpoint{
			ID:           NewCheckpointID(),
			RunID:        runID,
			GraphName:    "etl",
			Status:       string(RunStatusRunning),
			CheckpointAt: time.Now(),
		}))
	}

	entries, err := os.ReadDir(filepath.Join(dir, runID))
	require.NoError(t, err)
	// Three checkpoint files plus latest.json.
	require.Len(t, entries, 4)
}

func TestFileCheckpointerListRuns(t *testing.T) {
	ctx := context.Background()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	now := time.Now()
	old := NewRunID()
	require.NoError(t, checkpointer.SaveCheckpoint(ctx, &Checkpoint{
		ID:           NewCheckpointID(),
		RunID:        old,
		GraphName:    "etl",
		Status:       string(RunStatusCompleted),
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(-50 * time.Minute),
		CheckpointAt: now.Add(-50 * time.Minute),
	}))

	recent := NewRunID()
	require.NoError(t, checkpointer.SaveCheckpoint(ctx, &Checkpoint{
		ID:           NewCheckpointID(),
		RunID:        recent,
		GraphName:    "etl",
		Status:       string(RunStatusError),
		Error:        "node \"load\" failed",
		StartTime:    now.Add(-time.Minute),
		CheckpointAt: now,
	}))

	summaries, err := checkpointer.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, recent, summaries[0].RunID)
	require.Equal(t, old, summaries[1].RunID)
	require.Equal(t, string(RunStatusError), summaries[0].Status)
	require.NotEmpty(t, summaries[0].Error)
	require.Equal(t, 10*time.Minute, summaries[1].Duration)
}
