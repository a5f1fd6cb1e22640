package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of envelope being exchanged.
type MessageType string

const (
	MessageTypeTaskRequest           MessageType = "task_request"
	MessageTypeTaskResponse          MessageType = "task_response"
	MessageTypeCollaborationRequest  MessageType = "collaboration_request"
	MessageTypeCollaborationResponse MessageType = "collaboration_response"
	MessageTypeStatusUpdate          MessageType = "status_update"
	MessageTypeCapabilityQuery       MessageType = "capability_query"
	MessageTypeCapabilityResponse    MessageType = "capability_response"
	MessageTypeHeartbeat             MessageType = "heartbeat"
	MessageTypeError                 MessageType = "error"
	MessageTypeCustom                MessageType = "custom"
)

// Priority indicates relative delivery urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Envelope is the wire-level message unit exchanged between agents.
type Envelope struct {
	MessageID      string                 `json:"message_id"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	FromAgent      string                 `json:"from_agent"`
	ToAgent        string                 `json:"to_agent"`
	Type           MessageType            `json:"type"`
	Priority       Priority               `json:"priority"`
	CreatedAt      time.Time              `json:"created_at"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	Content        map[string]interface{} `json:"content"`
	Context        map[string]interface{} `json:"context,omitempty"`
	RetryCount     int                    `json:"retry_count"`
	MaxRetries     int                    `json:"max_retries"`
}

// requiredContent lists the content keys each typed variant must carry.
// Envelopes missing a required key are rejected at construction time,
// never at send time.
var requiredContent = map[MessageType][]string{
	MessageTypeTaskRequest:          {"task_description"},
	MessageTypeTaskResponse:         {"status"},
	MessageTypeCollaborationRequest: {"collaboration_type", "participants", "objective"},
	MessageTypeStatusUpdate:         {"status"},
	MessageTypeCapabilityResponse:   {"capabilities"},
}

// MessageOption customizes an envelope at construction time.
type MessageOption func(*Envelope)

// WithPriority sets the delivery priority.
func WithPriority(p Priority) MessageOption {
	return func(e *Envelope) { e.Priority = p }
}

// WithConversationID groups the envelope into a conversation.
func WithConversationID(id string) MessageOption {
	return func(e *Envelope) { e.ConversationID = id }
}

// WithCorrelationID pairs a response envelope with its request.
func WithCorrelationID(id string) MessageOption {
	return func(e *Envelope) { e.CorrelationID = id }
}

// WithExpiry sets the point after which the envelope must not be processed.
func WithExpiry(at time.Time) MessageOption {
	return func(e *Envelope) { e.ExpiresAt = &at }
}

// WithContext attaches additional routing/execution context.
func WithContext(context map[string]interface{}) MessageOption {
	return func(e *Envelope) { e.Context = context }
}

// WithMaxRetries overrides the sender's default retry budget.
func WithMaxRetries(n int) MessageOption {
	return func(e *Envelope) { e.MaxRetries = n }
}

// NewMessage builds and validates an envelope of any type. Typed variants
// with required content keys fail here when a key is missing.
func NewMessage(msgType MessageType, from, to string, content map[string]interface{}, opts ...MessageOption) (*Envelope, error) {
	if content == nil {
		content = make(map[string]interface{})
	}
	env := &Envelope{
		MessageID: uuid.New().String(),
		FromAgent: from,
		ToAgent:   to,
		Type:      msgType,
		Priority:  PriorityNormal,
		CreatedAt: time.Now().UTC(),
		Content:   content,
	}
	for _, opt := range opts {
		opt(env)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Validate checks routing fields and the typed variant's required content
// keys. It is called by every constructor; transports may call it again on
// received envelopes.
func (e *Envelope) Validate() error {
	if e.FromAgent == "" {
		return fmt.Errorf("%w: from_agent is required", ErrInvalidMessage)
	}
	if e.ToAgent == "" {
		return fmt.Errorf("%w: to_agent is required", ErrInvalidMessage)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}
	for _, key := range requiredContent[e.Type] {
		if _, ok := e.Content[key]; !ok {
			return fmt.Errorf("%w: %s requires %q in content", ErrInvalidMessage, e.Type, key)
		}
	}
	return nil
}

// IsExpired reports whether the envelope carries an expiry that has passed.
func (e *Envelope) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Copy returns an independent copy of the envelope. Content and context
// maps are copied one level deep, which is enough for broadcast fan-out
// where each target gets its own routing fields.
func (e *Envelope) Copy() *Envelope {
	cp := *e
	if e.Content != nil {
		cp.Content = make(map[string]interface{}, len(e.Content))
		for k, v := range e.Content {
			cp.Content[k] = v
		}
	}
	if e.Context != nil {
		cp.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			cp.Context[k] = v
		}
	}
	if e.ExpiresAt != nil {
		at := *e.ExpiresAt
		cp.ExpiresAt = &at
	}
	return &cp
}

// NewTaskRequest creates a validated task-request envelope.
func NewTaskRequest(from, to, taskDescription string, opts ...MessageOption) (*Envelope, error) {
	content := map[string]interface{}{
		"task_description": taskDescription,
		"requested_at":     time.Now().UTC().Format(time.RFC3339),
	}
	return NewMessage(MessageTypeTaskRequest, from, to, content, opts...)
}

// NewTaskResponse creates a validated task-response envelope. result and
// errMsg are optional; status is required by the variant contract.
func NewTaskResponse(from, to, status string, result interface{}, errMsg string, opts ...MessageOption) (*Envelope, error) {
	content := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if result != nil {
		content["result"] = result
	}
	if errMsg != "" {
		content["error"] = errMsg
	}
	return NewMessage(MessageTypeTaskResponse, from, to, content, opts...)
}

// NewCollaborationRequest creates a validated collaboration-request envelope.
func NewCollaborationRequest(from, to, collaborationType string, participants []string, objective string, opts ...MessageOption) (*Envelope, error) {
	content := map[string]interface{}{
		"collaboration_type": collaborationType,
		"participants":       participants,
		"objective":          objective,
	}
	return NewMessage(MessageTypeCollaborationRequest, from, to, content, opts...)
}

// NewStatusUpdate creates a validated status-update envelope.
func NewStatusUpdate(from, to, status string, opts ...MessageOption) (*Envelope, error) {
	content := map[string]interface{}{
		"status": status,
	}
	return NewMessage(MessageTypeStatusUpdate, from, to, content, opts...)
}

// NewCapabilityResponse creates a validated capability-response envelope.
func NewCapabilityResponse(from, to string, capabilities []string, opts ...MessageOption) (*Envelope, error) {
	content := map[string]interface{}{
		"capabilities": capabilities,
	}
	return NewMessage(MessageTypeCapabilityResponse, from, to, content, opts...)
}

// NewHeartbeat creates a heartbeat envelope with default alive content.
func NewHeartbeat(from, to string, opts ...MessageOption) (*Envelope, error) {
	content := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return NewMessage(MessageTypeHeartbeat, from, to, content, opts...)
}
