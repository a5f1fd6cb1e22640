package comm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmesh/agentmesh/core"
)

// Response is the receiver's acknowledgment of a delivered envelope.
type Response struct {
	Status    string                 `json:"status"`
	MessageID string                 `json:"message_id"`
	Timestamp time.Time              `json:"timestamp"`
	Response  map[string]interface{} `json:"response,omitempty"`
}

// Transport delivers one envelope to a concrete endpoint. Implementations
// must treat every failure as transient; retry policy lives in the
// ConnectionManager, not here.
type Transport interface {
	Deliver(ctx context.Context, endpoint string, env *core.Envelope) (*Response, error)
}

// HTTPTransport posts envelopes as JSON to {endpoint}/messages with W3C
// trace context propagation.
type HTTPTransport struct {
	client *http.Client
	logger core.Logger
}

// NewHTTPTransport creates a transport with a 30 second client timeout.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: &core.NoOpLogger{},
	}
}

// SetLogger configures the logger for delivery diagnostics.
func (t *HTTPTransport) SetLogger(logger core.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// SetHTTPClient replaces the underlying HTTP client, e.g. with a traced
// one from the telemetry package.
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	if client != nil {
		t.client = client
	}
}

// Deliver sends the envelope and decodes the acknowledgment. Non-2xx
// statuses and transport errors come back wrapped in the transient
// sentinels so the retry policy can recognize them.
func (t *HTTPTransport) Deliver(ctx context.Context, endpoint string, env *core.Envelope) (*Response, error) {
	tracer := otel.Tracer("agentmesh.comm")
	ctx, span := tracer.Start(ctx, "Deliver",
		trace.WithAttributes(
			attribute.String("message.id", env.MessageID),
			attribute.String("message.type", string(env.Type)),
			attribute.String("message.to", env.ToAgent),
		),
	)
	defer span.End()

	body, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal envelope %s: %w", env.MessageID, err)
	}

	url := strings.TrimRight(endpoint, "/") + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-From-Agent", env.FromAgent)
	req.Header.Set("X-Request-ID", uuid.New().String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return nil, fmt.Errorf("delivery to %s: %w: %v", env.ToAgent, core.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetStatus(codes.Error, "delivery rejected")
		return nil, fmt.Errorf("delivery to %s returned status %d: %s: %w",
			env.ToAgent, resp.StatusCode, strings.TrimSpace(string(payload)), core.ErrRequestFailed)
	}

	var ack Response
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && err != io.EOF {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode delivery acknowledgment: %w: %v", core.ErrRequestFailed, err)
	}
	if ack.MessageID == "" {
		ack.MessageID = env.MessageID
	}
	if ack.Status == "" {
		ack.Status = "success"
	}

	span.SetStatus(codes.Ok, "delivered")
	return &ack, nil
}
