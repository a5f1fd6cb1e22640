package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/core"
)

// Event is one entry on a task's event queue. Status events carry the
// task's new lifecycle status; response events additionally carry the
// envelope produced by the executor.
type Event struct {
	TaskID    string                 `json:"task_id"`
	Status    string                 `json:"status"`
	Message   *core.Envelope         `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventQueue is an unbounded FIFO of task events with fan-out taps.
// Enqueued events reach the queue itself and every tap created before
// the enqueue. Closing the queue cascades to its taps and rejects new
// events; buffered events stay dequeuable so consumers always see the
// terminal event before end-of-stream.
type EventQueue struct {
	mu     sync.Mutex
	buffer []*Event
	taps   []*EventQueue
	wake   chan struct{}
	closed bool
}

// NewEventQueue creates an open, empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		wake: make(chan struct{}),
	}
}

// Enqueue appends the event and fans it out to all taps. Returns
// ErrQueueClosed if the queue is closed.
func (q *EventQueue) Enqueue(event *Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.buffer = append(q.buffer, event)
	taps := make([]*EventQueue, len(q.taps))
	copy(taps, q.taps)
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()

	for _, tap := range taps {
		// A tap closed between the snapshot and here just drops the
		// event, which matches closing semantics.
		_ = tap.Enqueue(event)
	}
	return nil
}

// Dequeue removes and returns the oldest event, blocking until one is
// available, the queue closes, or the context is done. A closed queue
// drains: ErrQueueClosed is returned only once the buffer is empty.
func (q *EventQueue) Dequeue(ctx context.Context) (*Event, error) {
	for {
		q.mu.Lock()
		if len(q.buffer) > 0 {
			event := q.buffer[0]
			q.buffer = q.buffer[1:]
			q.mu.Unlock()
			return event, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// Tap creates a child queue that receives every event enqueued from now
// on. Returns nil if the queue is already closed.
func (q *EventQueue) Tap() *EventQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	child := NewEventQueue()
	q.taps = append(q.taps, child)
	return child
}

// Close closes the queue and all its taps. Buffered events remain
// dequeuable. Closing an already-closed queue is a no-op.
func (q *EventQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	taps := q.taps
	q.taps = nil
	close(q.wake)
	q.mu.Unlock()

	for _, tap := range taps {
		tap.Close()
	}
}

// Closed reports whether the queue has been closed.
func (q *EventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of buffered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// QueueManager tracks one event queue per active task.
type QueueManager struct {
	mu     sync.Mutex
	queues map[string]*EventQueue
	logger core.Logger
}

// NewQueueManager creates an empty queue manager.
func NewQueueManager() *QueueManager {
	return &QueueManager{
		queues: make(map[string]*EventQueue),
		logger: &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for queue lifecycle events.
func (m *QueueManager) SetLogger(logger core.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// CreateOrGet returns the queue for the task id, creating it on first
// use.
func (m *QueueManager) CreateOrGet(taskID string) *EventQueue {
	m.mu.Lock()
	defer m.mu.Unlock()

	if queue, ok := m.queues[taskID]; ok {
		return queue
	}
	queue := NewEventQueue()
	m.queues[taskID] = queue
	m.logger.Debug("Event queue created", map[string]interface{}{
		"task_id": taskID,
	})
	return queue
}

// Get returns the queue for the task id, or nil if none exists.
func (m *QueueManager) Get(taskID string) *EventQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[taskID]
}

// Tap subscribes to the task's queue. Returns nil when the task has no
// queue or the queue has already closed.
func (m *QueueManager) Tap(taskID string) *EventQueue {
	m.mu.Lock()
	queue := m.queues[taskID]
	m.mu.Unlock()

	if queue == nil {
		return nil
	}
	return queue.Tap()
}

// Close closes the task's queue, cascading to its taps, and removes it
// from the manager. Closing an absent or already-closed task is a
// no-op.
func (m *QueueManager) Close(taskID string) {
	m.mu.Lock()
	queue := m.queues[taskID]
	delete(m.queues, taskID)
	m.mu.Unlock()

	if queue != nil {
		queue.Close()
		m.logger.Debug("Event queue closed", map[string]interface{}{
			"task_id": taskID,
		})
	}
}

// Len returns the number of active task queues.
func (m *QueueManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}
