package core

import (
	"errors"
	"testing"
	"time"
)

func TestNewMessageDefaults(t *testing.T) {
	env, err := NewMessage(MessageTypeCustom, "alpha", "beta", nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if env.MessageID == "" {
		t.Error("Expected generated message id")
	}
	if env.Priority != PriorityNormal {
		t.Errorf("Expected normal priority, got %s", env.Priority)
	}
	if env.Content == nil {
		t.Error("Expected non-nil content map")
	}
	if env.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestNewMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		from    string
		to      string
		content map[string]interface{}
		wantErr bool
	}{
		{
			name:    "missing from",
			msgType: MessageTypeCustom,
			from:    "",
			to:      "beta",
			wantErr: true,
		},
		{
			name:    "missing to",
			msgType: MessageTypeCustom,
			from:    "alpha",
			to:      "",
			wantErr: true,
		},
		{
			name:    "task request without description",
			msgType: MessageTypeTaskRequest,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{"other": "value"},
			wantErr: true,
		},
		{
			name:    "task request with description",
			msgType: MessageTypeTaskRequest,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{"task_description": "do it"},
		},
		{
			name:    "task response without status",
			msgType: MessageTypeTaskResponse,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{"result": 42},
			wantErr: true,
		},
		{
			name:    "collaboration request missing objective",
			msgType: MessageTypeCollaborationRequest,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{
				"collaboration_type": "review",
				"participants":       []string{"alpha", "beta"},
			},
			wantErr: true,
		},
		{
			name:    "status update with status",
			msgType: MessageTypeStatusUpdate,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{"status": "working"},
		},
		{
			name:    "capability response without capabilities",
			msgType: MessageTypeCapabilityResponse,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{},
			wantErr: true,
		},
		{
			name:    "heartbeat has no required keys",
			msgType: MessageTypeHeartbeat,
			from:    "alpha",
			to:      "beta",
			content: map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewMessage(tt.msgType, tt.from, tt.to, tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected validation error")
				}
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("Expected ErrInvalidMessage, got %v", err)
				}
				if env != nil {
					t.Error("Expected nil envelope on validation failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		})
	}
}

func TestMessageConstructors(t *testing.T) {
	req, err := NewTaskRequest("alpha", "beta", "summarize the report")
	if err != nil {
		t.Fatalf("NewTaskRequest failed: %v", err)
	}
	if req.Type != MessageTypeTaskRequest {
		t.Errorf("Expected task_request, got %s", req.Type)
	}
	if req.Content["task_description"] != "summarize the report" {
		t.Errorf("Unexpected task description: %v", req.Content["task_description"])
	}

	resp, err := NewTaskResponse("beta", "alpha", "completed", map[string]interface{}{"answer": 42}, "",
		WithCorrelationID(req.MessageID))
	if err != nil {
		t.Fatalf("NewTaskResponse failed: %v", err)
	}
	if resp.CorrelationID != req.MessageID {
		t.Error("Expected correlation id to pair response with request")
	}
	if _, ok := resp.Content["error"]; ok {
		t.Error("Empty error message should not appear in content")
	}

	hb, err := NewHeartbeat("alpha", "beta")
	if err != nil {
		t.Fatalf("NewHeartbeat failed: %v", err)
	}
	if hb.Content["status"] != "alive" {
		t.Errorf("Expected default alive status, got %v", hb.Content["status"])
	}
}

func TestMessageOptions(t *testing.T) {
	expiry := time.Now().Add(time.Minute)
	env, err := NewMessage(MessageTypeCustom, "alpha", "beta", nil,
		WithPriority(PriorityUrgent),
		WithConversationID("conv-1"),
		WithExpiry(expiry),
		WithMaxRetries(7),
		WithContext(map[string]interface{}{"trace": "abc"}),
	)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if env.Priority != PriorityUrgent {
		t.Errorf("Expected urgent priority, got %s", env.Priority)
	}
	if env.ConversationID != "conv-1" {
		t.Errorf("Unexpected conversation id: %s", env.ConversationID)
	}
	if env.ExpiresAt == nil || !env.ExpiresAt.Equal(expiry) {
		t.Error("Expected expiry to be set")
	}
	if env.MaxRetries != 7 {
		t.Errorf("Expected max retries 7, got %d", env.MaxRetries)
	}
	if env.Context["trace"] != "abc" {
		t.Error("Expected context to be attached")
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	env, _ := NewMessage(MessageTypeCustom, "alpha", "beta", nil)
	if env.IsExpired(now) {
		t.Error("Envelope without expiry should never expire")
	}

	past := now.Add(-time.Second)
	env.ExpiresAt = &past
	if !env.IsExpired(now) {
		t.Error("Envelope past its expiry should be expired")
	}

	future := now.Add(time.Second)
	env.ExpiresAt = &future
	if env.IsExpired(now) {
		t.Error("Envelope before its expiry should not be expired")
	}
}

func TestEnvelopeCopy(t *testing.T) {
	env, _ := NewTaskRequest("alpha", "beta", "original",
		WithContext(map[string]interface{}{"key": "value"}))

	clone := env.Copy()
	clone.ToAgent = "gamma"
	clone.Content["task_description"] = "mutated"
	clone.Context["key"] = "mutated"

	if env.ToAgent != "beta" {
		t.Error("Copy mutated the original's routing")
	}
	if env.Content["task_description"] != "original" {
		t.Error("Copy shares the content map with the original")
	}
	if env.Context["key"] != "value" {
		t.Error("Copy shares the context map with the original")
	}
}
