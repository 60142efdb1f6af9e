package dagflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileCheckpointer persists checkpoints as JSON files on disk, one directory
// per run. Every save lands in its own file and then replaces latest.json
// via an atomic rename, so a crash mid-write leaves the previous checkpoint
// authoritative.
type FileCheckpointer struct {
	dataDir string
}

// NewFileCheckpointer creates a new file-based checkpointer rooted at
// dataDir, defaulting to ~/.dagflow/runs.
func NewFileCheckpointer(dataDir string) (*FileCheckpointer, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".dagflow", "runs")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileCheckpointer{dataDir: dataDir}, nil
}

// SaveCheckpoint writes the checkpoint to disk and atomically updates the
// latest pointer.
func (c *FileCheckpointer) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	runDir := filepath.Join(c.dataDir, checkpoint.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	checkpointPath := filepath.Join(runDir, fmt.Sprintf("checkpoint-%s.json", checkpoint.ID))
	if err := c.writeAtomic(checkpointPath, data); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}

	// latest.json is replaced by rename, never written in place.
	latestPath := filepath.Join(runDir, "latest.json")
	if err := c.writeAtomic(latestPath, data); err != nil {
		return fmt.Errorf("failed to update latest checkpoint: %w", err)
	}
	return nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over the destination.
func (c *FileCheckpointer) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// LoadCheckpoint loads the latest checkpoint for a run.
func (c *FileCheckpointer) LoadCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	latestPath := filepath.Join(c.dataDir, runID, "latest.json")

	data, err := os.ReadFile(latestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no checkpoint yet
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// DeleteCheckpoints removes all checkpoint data for a run.
func (c *FileCheckpointer) DeleteCheckpoints(ctx context.Context, runID string) error {
	runDir := filepath.Join(c.dataDir, runID)
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to delete run directory: %w", err)
	}
	return nil
}

// RunSummary describes a run as recorded by its latest checkpoint.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	GraphName string        `json:"graph_name"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time,omitzero"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// ListRuns returns a summary for every run with a checkpoint on disk,
// newest first.
func (c *FileCheckpointer) ListRuns(ctx context.Context) ([]*RunSummary, error) {
	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*RunSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var summaries []*RunSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		checkpoint, err := c.LoadCheckpoint(ctx, entry.Name())
		if err != nil || checkpoint == nil {
			// Skip runs we can't read
			continue
		}
		duration := checkpoint.CheckpointAt.Sub(checkpoint.StartTime)
		if !checkpoint.EndTime.IsZero() {
			duration = checkpoint.EndTime.Sub(checkpoint.StartTime)
		}
		summaries = append(summaries, &RunSummary{
			RunID:     checkpoint.RunID,
			GraphName: checkpoint.GraphName,
			Status:    checkpoint.Status,
			StartTime: checkpoint.StartTime,
			EndTime:   checkpoint.EndTime,
			Duration:  duration,
			Error:     checkpoint.Error,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime.After(summaries[j].StartTime)
	})
	return summaries, nil
}
