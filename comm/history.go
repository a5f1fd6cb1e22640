package comm

import (
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/core"
)

// Send outcomes recorded in history.
const (
	SendStatusSent   = "sent"
	SendStatusFailed = "failed"
)

// SendRecord is one delivery attempt's outcome, kept for audit and
// debugging. History provides no delivery guarantees.
type SendRecord struct {
	MessageID string           `json:"message_id"`
	FromAgent string           `json:"from_agent"`
	ToAgent   string           `json:"to_agent"`
	Type      core.MessageType `json:"type"`
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Response  *Response        `json:"response,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// sendHistory is a bounded ring buffer of send records; when full, the
// oldest record is evicted first.
type sendHistory struct {
	mu       sync.Mutex
	records  []SendRecord
	capacity int
}

func newSendHistory(capacity int) *sendHistory {
	if capacity < 1 {
		capacity = 1000
	}
	return &sendHistory{
		records:  make([]SendRecord, 0, capacity),
		capacity: capacity,
	}
}

func (h *sendHistory) append(record SendRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) == h.capacity {
		copy(h.records, h.records[1:])
		h.records = h.records[:h.capacity-1]
	}
	h.records = append(h.records, record)
}

// snapshot returns the records oldest-first.
func (h *sendHistory) snapshot() []SendRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]SendRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *sendHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
