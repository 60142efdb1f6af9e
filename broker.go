package dagflow

import (
	"context"
	"sync"
)

// Subscriber is one live consumer of a run's progress events.
type Subscriber struct {
	broker *Broker
	runID  string
	ch     chan *ProgressEvent

	mu      sync.Mutex
	closed  bool
	dropped int
}

// Events returns the subscriber's event channel. It is closed when the
// subscription ends.
func (s *Subscriber) Events() <-chan *ProgressEvent {
	return s.ch
}

// Dropped returns how many events were discarded because the subscriber fell
// behind its buffer.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close ends the subscription.
func (s *Subscriber) Close() {
	s.broker.unsubscribe(s)
}

func (s *Subscriber) send(event *ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		// Never block the coordinator on a slow consumer.
		s.dropped++
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Broker fans progress events out to per-run subscribers. It implements
// ProgressEmitter so it can sit in an EmitterChain next to the event log.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscriber]struct{}
	bufferSize  int
}

// NewBroker creates a broker whose subscribers buffer up to bufferSize
// events each.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broker{
		subscribers: map[string]map[*Subscriber]struct{}{},
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a consumer for one run's events.
func (b *Broker) Subscribe(runID string) *Subscriber {
	sub := &Subscriber{
		broker: b,
		runID:  runID,
		ch:     make(chan *ProgressEvent, b.bufferSize),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[runID] == nil {
		b.subscribers[runID] = map[*Subscriber]struct{}{}
	}
	b.subscribers[runID][sub] = struct{}{}
	return sub
}

func (b *Broker) unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if subs, ok := b.subscribers[sub.runID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subscribers, sub.runID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// Emit delivers the event to all subscribers of its run without blocking.
func (b *Broker) Emit(ctx context.Context, event *ProgressEvent) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers[event.RunID]))
	for sub := range b.subscribers[event.RunID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.send(event)
	}
}

// CloseRun ends every subscription for a run, closing their channels so
// consumers observe the end of the stream.
func (b *Broker) CloseRun(runID string) {
	b.mu.Lock()
	subs := b.subscribers[runID]
	delete(b.subscribers, runID)
	b.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}
