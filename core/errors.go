package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Agent-related errors
	ErrAgentNotFound = errors.New("agent not found")
	ErrNoEndpoint    = errors.New("no messaging endpoint registered")

	// Message errors
	ErrInvalidMessage = errors.New("invalid message")
	ErrMessageExpired = errors.New("message expired")

	// Discovery-related errors
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// Operation errors
	ErrTimeout            = errors.New("operation timeout")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// HTTP/Network errors
	ErrConnectionFailed = errors.New("connection failed")
	ErrRequestFailed    = errors.New("request failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// AgentError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type AgentError struct {
	Op      string // Operation that failed (e.g., "connection.Send")
	Kind    string // Error kind (e.g., "registry", "transport", "message")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *AgentError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError
func NewAgentError(op, kind string, err error) *AgentError {
	return &AgentError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is a transient transport condition
// worth another delivery attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrRequestFailed) ||
		errors.Is(err, ErrRegistryUnavailable)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrNoEndpoint)
}
