package dagflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.jetify.com/typeid"
)

// NewEventID returns a new typed UUID for event identification.
func NewEventID() string {
	id, err := typeid.WithPrefix("evt")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// EventKind identifies what a progress event reports.
type EventKind string

const (
	EventNodeStart    EventKind = "node_start"
	EventNodeComplete EventKind = "node_complete"
	EventNodeError    EventKind = "node_error"
	EventNodeSkipped  EventKind = "node_skipped"
	EventRunPaused    EventKind = "run_paused"
	EventRunCompleted EventKind = "run_completed"
	EventRunError     EventKind = "run_error"
)

// ProgressEvent is one observable state transition within a run. Events are
// advisory: consumers may miss them and must treat the run's checkpoints as
// the source of truth.
type ProgressEvent struct {
	ID      string    `json:"id"`
	RunID   string    `json:"run_id"`
	NodeID  string    `json:"node_id,omitempty"`
	Kind    EventKind `json:"kind"`
	Label   string    `json:"label,omitempty"`
	Output  any       `json:"output,omitempty"`
	Error   string    `json:"error,omitempty"`
	Percent float64   `json:"percent"`
	Time    time.Time `json:"time"`
}

// ProgressEmitter receives progress events as the coordinator applies
// transitions. Emit must not block: slow consumers belong behind a buffer.
type ProgressEmitter interface {
	Emit(ctx context.Context, event *ProgressEvent)
}

// NullEmitter discards all events.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (e *NullEmitter) Emit(ctx context.Context, event *ProgressEvent) {}

// LogEmitter writes each event to a structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(ctx context.Context, event *ProgressEvent) {
	attrs := []any{
		"run_id", event.RunID,
		"kind", string(event.Kind),
		"percent", event.Percent,
	}
	if event.NodeID != "" {
		attrs = append(attrs, "node_id", event.NodeID)
	}
	if event.Label != "" {
		attrs = append(attrs, "label", event.Label)
	}
	switch event.Kind {
	case EventNodeError, EventRunError:
		attrs = append(attrs, "error", event.Error)
		e.logger.Error("workflow progress", attrs...)
	default:
		e.logger.Info("workflow progress", attrs...)
	}
}

// EmitterChain fans one event out to multiple emitters, in order.
type EmitterChain struct {
	emitters []ProgressEmitter
}

func NewEmitterChain(emitters ...ProgressEmitter) *EmitterChain {
	return &EmitterChain{emitters: emitters}
}

func (c *EmitterChain) Emit(ctx context.Context, event *ProgressEvent) {
	for _, emitter := range c.emitters {
		emitter.Emit(ctx, event)
	}
}

// EventLog is an append-only record of progress events, used to replay
// history to late subscribers.
type EventLog interface {
	// Append records an event.
	Append(ctx context.Context, event *ProgressEvent) error

	// ListByRun returns a run's events in append order.
	ListByRun(ctx context.Context, runID string) ([]*ProgressEvent, error)

	// DeleteByRun removes all of a run's events.
	DeleteByRun(ctx context.Context, runID string) error
}

// StoreEmitter appends every event to an EventLog. Append failures are
// logged and dropped: event history is advisory and must never stall a run.
type StoreEmitter struct {
	log    EventLog
	logger *slog.Logger
}

func NewStoreEmitter(log EventLog, logger *slog.Logger) *StoreEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreEmitter{log: log, logger: logger}
}

func (e *StoreEmitter) Emit(ctx context.Context, event *ProgressEvent) {
	if err := e.log.Append(ctx, event); err != nil {
		e.logger.Warn("failed to append progress event",
			"run_id", event.RunID, "event_id", event.ID, "error", err)
	}
}

// MemoryEventLog is an in-memory EventLog.
type MemoryEventLog struct {
	mu     sync.RWMutex
	events map[string][]*ProgressEvent
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{events: map[string][]*ProgressEvent{}}
}

func (l *MemoryEventLog) Append(ctx context.Context, event *ProgressEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *event
	l.events[event.RunID] = append(l.events[event.RunID], &copied)
	return nil
}

func (l *MemoryEventLog) DeleteByRun(ctx context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, runID)
	return nil
}

func (l *MemoryEventLog) ListByRun(ctx context.Context, runID string) ([]*ProgressEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.events[runID]
	out := make([]*ProgressEvent, len(events))
	for i, event := range events {
		copied := *event
		out[i] = &copied
	}
	return out, nil
}
