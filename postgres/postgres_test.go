package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/deepnoodle-ai/dagflow"
)

// startStore launches a disposable PostgreSQL container and returns a
// migrated Store against it.
func startStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dagflow"),
		tcpostgres.WithUsername("dagflow"),
		tcpostgres.WithPassword("dagflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestRunStoreRoundTrip(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	run := &dagflow.Run{
		ID:        dagflow.NewRunID(),
		GraphName: "etl",
		Status:    dagflow.RunStatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, dagflow.RunStatusRunning, got.Status)

	got.Status = dagflow.RunStatusCompleted
	require.NoError(t, store.UpdateRun(ctx, got))

	updated, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, dagflow.RunStatusCompleted, updated.Status)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = store.GetRun(ctx, "run_missing")
	require.ErrorIs(t, err, dagflow.ErrRunNotFound)

	err = store.UpdateRun(ctx, &dagflow.Run{ID: "run_missing"})
	require.ErrorIs(t, err, dagflow.ErrRunNotFound)

	require.NoError(t, store.DeleteRun(ctx, run.ID))
	_, err = store.GetRun(ctx, run.ID)
	require.ErrorIs(t, err, dagflow.ErrRunNotFound)
	require.ErrorIs(t, store.DeleteRun(ctx, run.ID), dagflow.ErrRunNotFound)
}

func TestCheckpointerLatestWins(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()
	runID := dagflow.NewRunID()

	missing, err := store.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.Nil(t, missing)

	first := &dagflow.Checkpoint{
		ID:        dagflow.NewCheckpointID(),
		RunID:     runID,
		GraphName: "etl",
		Status:    string(dagflow.RunStatusRunning),
		NodeStates: map[string]*dagflow.NodeState{
			"fetch": {NodeID: "fetch", Status: dagflow.NodeStatusRunning},
		},
		CheckpointAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveCheckpoint(ctx, first))

	second := &dagflow.Checkpoint{
		ID:        dagflow.NewCheckpointID(),
		RunID:     runID,
		GraphName: "etl",
		Status:    string(dagflow.RunStatusCompleted),
		NodeStates: map[string]*dagflow.NodeState{
			"fetch": {NodeID: "fetch", Status: dagflow.NodeStatusCompleted, Output: "42 rows"},
		},
		CheckpointAt: time.Now().UTC().Add(time.Second),
	}
	require.NoError(t, store.SaveCheckpoint(ctx, second))

	latest, err := store.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, string(dagflow.RunStatusCompleted), latest.Status)
	require.Equal(t, dagflow.NodeStatusCompleted, latest.NodeStates["fetch"].Status)

	require.NoError(t, store.DeleteCheckpoints(ctx, runID))
	gone, err := store.LoadCheckpoint(ctx, runID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestEventLogAppendOrder(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()
	runID := dagflow.NewRunID()

	base := time.Now().UTC()
	kinds := []dagflow.EventKind{
		dagflow.EventNodeStart,
		dagflow.EventNodeComplete,
		dagflow.EventRunCompleted,
	}
	for i, kind := range kinds {
		require.NoError(t, store.Append(ctx, &dagflow.ProgressEvent{
			ID:    dagflow.NewEventID(),
			RunID: runID,
			Kind:  kind,
			Time:  base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	events, err := store.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, kind := range kinds {
		require.Equal(t, kind, events[i].Kind)
	}

	require.NoError(t, store.DeleteByRun(ctx, runID))
	gone, err := store.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Empty(t, gone)
}
