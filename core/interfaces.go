package core

import (
	"context"
)

// Logger interface - minimal logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// Telemetry interface - optional telemetry support
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a telemetry span
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Registry is the discovery contract shared by the embedded, delegated
// and Redis-backed implementations.
//
// Discovery is advisory: no method returns an error. Failures degrade to
// false/nil/empty plus a logged diagnostic, and callers treat absence as
// "try later" rather than a fatal condition.
type Registry interface {
	// Register upserts the card. Re-registration replaces it wholesale.
	Register(ctx context.Context, card *AgentCard) bool
	// Unregister removes the card. Idempotent; unknown ids are not an error.
	Unregister(ctx context.Context, agentID string) bool
	// Get returns the card for an agent, or nil if absent or expired.
	Get(ctx context.Context, agentID string) *AgentCard
	// Discover returns all live cards, or, when capabilities are given,
	// the cards whose capability set intersects the filter (OR semantics).
	Discover(ctx context.Context, capabilities []string) []*AgentCard
	// HealthCheck reports whether the registry is usable.
	HealthCheck(ctx context.Context) bool
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpTelemetry provides a no-op telemetry implementation
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan provides a no-op span implementation
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}
