// Package tasks provides task record storage, per-task event queues and
// a dispatcher that turns task request envelopes into executed work.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Task lifecycle statuses.
const (
	StatusSubmitted = "submitted"
	StatusWorking   = "working"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

var (
	// ErrTaskNotFound is returned when a task id has no stored record.
	ErrTaskNotFound = errors.New("task not found")

	// ErrQueueClosed is returned when enqueueing or dequeueing on a
	// closed event queue.
	ErrQueueClosed = errors.New("event queue closed")
)

// Record is the persisted state of one task.
type Record struct {
	TaskID    string                 `json:"task_id"`
	Status    string                 `json:"status"`
	State     map[string]interface{} `json:"state,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Copy returns an independent copy of the record. The state map is
// copied one level deep.
func (r *Record) Copy() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.State != nil {
		clone.State = make(map[string]interface{}, len(r.State))
		for k, v := range r.State {
			clone.State[k] = v
		}
	}
	return &clone
}

// Store persists task records.
type Store interface {
	// Save inserts or replaces the record under its task id.
	Save(ctx context.Context, record *Record) error

	// Get returns the record for the task id, or ErrTaskNotFound.
	Get(ctx context.Context, taskID string) (*Record, error)

	// Delete removes the record. The bool reports whether a record
	// existed; deleting an absent id is not an error.
	Delete(ctx context.Context, taskID string) (bool, error)
}

// MemoryStore is a process-local Store backed by a map. Safe for
// concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

// Save stores a copy of the record, stamping UpdatedAt.
func (s *MemoryStore) Save(ctx context.Context, record *Record) error {
	if record == nil || record.TaskID == "" {
		return errors.New("record must have a task id")
	}

	clone := record.Copy()
	clone.UpdatedAt = time.Now()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = clone.UpdatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.TaskID] = clone
	return nil
}

// Get returns a copy of the stored record.
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return record.Copy(), nil
}

// Delete removes the record if present, reporting whether it existed.
func (s *MemoryStore) Delete(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.records[taskID]
	delete(s.records, taskID)
	return existed, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
