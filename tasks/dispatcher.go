package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/core"
)

// Executor runs the actual work behind a task request. Implementations
// are domain specific; the dispatcher only drives the lifecycle around
// them.
type Executor interface {
	// Execute runs the task and returns the response envelope to send
	// back to the requester.
	Execute(ctx context.Context, record *Record, content map[string]interface{}) (*core.Envelope, error)

	// Cancel asks the executor to stop the task. Returns true if the
	// task was known and cancellation was initiated.
	Cancel(taskID string) bool
}

// Dispatcher turns task request envelopes into stored, executed tasks
// with a live event queue per task.
type Dispatcher struct {
	agentID   string
	store     Store
	queues    *QueueManager
	executor  Executor
	logger    core.Logger
	telemetry core.Telemetry
	now       func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithStore replaces the task store.
func WithStore(store Store) DispatcherOption {
	return func(d *Dispatcher) {
		if store != nil {
			d.store = store
		}
	}
}

// WithQueueManager replaces the queue manager.
func WithQueueManager(queues *QueueManager) DispatcherOption {
	return func(d *Dispatcher) {
		if queues != nil {
			d.queues = queues
		}
	}
}

// WithDispatcherLogger configures the logger.
func WithDispatcherLogger(logger core.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherTelemetry records task metrics through the given sink.
func WithDispatcherTelemetry(telemetry core.Telemetry) DispatcherOption {
	return func(d *Dispatcher) {
		if telemetry != nil {
			d.telemetry = telemetry
		}
	}
}

// NewDispatcher creates a dispatcher for the given local agent id.
func NewDispatcher(agentID string, executor Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		agentID:   agentID,
		store:     NewMemoryStore(),
		queues:    NewQueueManager(),
		executor:  executor,
		logger:    &core.NoOpLogger{},
		telemetry: &core.NoOpTelemetry{},
		now:       time.Now,
		running:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Queues exposes the queue manager so callers can tap task streams.
func (d *Dispatcher) Queues() *QueueManager {
	return d.queues
}

// Store exposes the task store.
func (d *Dispatcher) Store() Store {
	return d.store
}

// taskID derives the task id from the envelope. A task_id content key
// wins; otherwise the message id identifies the task.
func taskID(env *core.Envelope) string {
	if id, ok := env.Content["task_id"].(string); ok && id != "" {
		return id
	}
	return env.MessageID
}

// HandleEnvelope accepts a task request envelope, persists the task,
// streams lifecycle events on the task's queue, runs the executor and
// returns its response envelope. Non-request or expired envelopes are
// rejected before any state is created.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env *core.Envelope) (*core.Envelope, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: envelope is nil", core.ErrInvalidMessage)
	}
	if env.Type != core.MessageTypeTaskRequest {
		return nil, fmt.Errorf("%w: dispatcher only handles %s, got %s",
			core.ErrInvalidMessage, core.MessageTypeTaskRequest, env.Type)
	}
	if env.IsExpired(d.now()) {
		return nil, fmt.Errorf("%w: message %s", core.ErrMessageExpired, env.MessageID)
	}

	id := taskID(env)
	record := &Record{
		TaskID:    id,
		Status:    StatusSubmitted,
		State:     map[string]interface{}{"from_agent": env.FromAgent},
		CreatedAt: d.now(),
	}
	if err := d.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist task %s: %w", id, err)
	}

	queue := d.queues.CreateOrGet(id)
	d.telemetry.RecordMetric("tasks.submitted", 1, map[string]string{"agent": d.agentID})
	d.logger.Info("Task accepted", map[string]interface{}{
		"task_id": id,
		"from":    env.FromAgent,
	})

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.running[id] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.running, id)
		d.mu.Unlock()
	}()

	record.Status = StatusWorking
	if err := d.store.Save(ctx, record); err != nil {
		d.logger.Warn("Failed to persist working status", map[string]interface{}{
			"task_id": id,
			"error":   err.Error(),
		})
	}
	d.publish(queue, id, StatusWorking, nil)

	response, err := d.executor.Execute(execCtx, record, env.Content)
	if err != nil {
		record.Status = StatusFailed
		if execCtx.Err() != nil {
			record.Status = StatusCanceled
		}
		record.State["error"] = err.Error()
		if saveErr := d.store.Save(ctx, record); saveErr != nil {
			d.logger.Warn("Failed to persist terminal status", map[string]interface{}{
				"task_id": id,
				"error":   saveErr.Error(),
			})
		}
		d.publish(queue, id, record.Status, nil)
		d.queues.Close(id)

		d.telemetry.RecordMetric("tasks.failed", 1, map[string]string{"agent": d.agentID})
		d.logger.Error("Task execution failed", map[string]interface{}{
			"task_id": id,
			"status":  record.Status,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("task %s failed: %w", id, err)
	}

	record.Status = StatusCompleted
	if saveErr := d.store.Save(ctx, record); saveErr != nil {
		d.logger.Warn("Failed to persist terminal status", map[string]interface{}{
			"task_id": id,
			"error":   saveErr.Error(),
		})
	}
	d.publish(queue, id, StatusCompleted, response)
	d.queues.Close(id)

	d.telemetry.RecordMetric("tasks.completed", 1, map[string]string{"agent": d.agentID})
	d.logger.Info("Task completed", map[string]interface{}{
		"task_id": id,
	})
	return response, nil
}

// Cancel stops a running task. Returns true when the task was running
// and cancellation was initiated.
func (d *Dispatcher) Cancel(taskID string) bool {
	d.mu.Lock()
	cancel, ok := d.running[taskID]
	d.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	d.executor.Cancel(taskID)
	d.logger.Info("Task canceled", map[string]interface{}{
		"task_id": taskID,
	})
	return true
}

func (d *Dispatcher) publish(queue *EventQueue, taskID, status string, message *core.Envelope) {
	err := queue.Enqueue(&Event{
		TaskID:    taskID,
		Status:    status,
		Message:   message,
		Timestamp: d.now(),
	})
	if err != nil {
		d.logger.Debug("Dropped event for closed queue", map[string]interface{}{
			"task_id": taskID,
			"status":  status,
		})
	}
}
