package dagflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.jetify.com/typeid"
)

// NewRunID returns a new typed UUID for run identification.
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the overall status of a workflow run.
type RunStatus string

const (
	RunStatusDraft     RunStatus = "draft"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// Run is the durable record of one execution attempt over a graph snapshot.
// A run owns its node states and checkpoints; it is destroyed only by
// explicit user action, never implicitly.
type Run struct {
	ID            string    `json:"id"`
	GraphName     string    `json:"graph_name"`
	Status        RunStatus `json:"status"`
	Error         string    `json:"error,omitempty"`
	WaitingNodeID string    `json:"waiting_node_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Copy returns a shallow copy of the run.
func (r *Run) Copy() *Run {
	copied := *r
	return &copied
}

// RunStore is the persistence contract for run records. The engine only
// issues reads and writes against it; schema management belongs to the
// owning data layer.
type RunStore interface {
	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by id, or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]*Run, error)

	// DeleteRun removes a run record.
	DeleteRun(ctx context.Context, runID string) error
}

// MemoryRunStore is an in-memory RunStore, suitable for tests and for
// embedding the engine without a database.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: map[string]*Run{}}
}

func (s *MemoryRunStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Copy()
	return nil
}

func (s *MemoryRunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Copy(), nil
}

func (s *MemoryRunStore) UpdateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	updated := run.Copy()
	updated.UpdatedAt = time.Now()
	s.runs[run.ID] = updated
	return nil
}

func (s *MemoryRunStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return ErrRunNotFound
	}
	delete(s.runs, runID)
	return nil
}

func (s *MemoryRunStore) ListRuns(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.Copy())
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}
