package comm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentmesh/agentmesh/core"
)

func TestHTTPTransportDeliver(t *testing.T) {
	var received core.Envelope
	var fromHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		fromHeader = r.Header.Get("X-From-Agent")
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected a request id header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode envelope: %v", err)
		}
		json.NewEncoder(w).Encode(Response{Status: "received", MessageID: received.MessageID})
	}))
	defer server.Close()

	env, err := core.NewTaskRequest("alpha", "beta", "deliver me")
	if err != nil {
		t.Fatalf("NewTaskRequest failed: %v", err)
	}

	transport := NewHTTPTransport()
	ack, err := transport.Deliver(context.Background(), server.URL, env)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if ack.Status != "received" {
		t.Errorf("Unexpected ack status: %s", ack.Status)
	}
	if ack.MessageID != env.MessageID {
		t.Errorf("Ack should reference the delivered message")
	}
	if received.MessageID != env.MessageID {
		t.Errorf("Server received wrong envelope")
	}
	if fromHeader != "alpha" {
		t.Errorf("Expected X-From-Agent alpha, got %q", fromHeader)
	}
}

func TestHTTPTransportDeliverEmptyAckDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env, _ := core.NewTaskRequest("alpha", "beta", "fire and forget")
	transport := NewHTTPTransport()

	ack, err := transport.Deliver(context.Background(), server.URL, env)
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if ack.Status != "success" {
		t.Errorf("Empty ack should default status, got %q", ack.Status)
	}
	if ack.MessageID != env.MessageID {
		t.Error("Empty ack should default to the delivered message id")
	}
}

func TestHTTPTransportDeliverRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	env, _ := core.NewTaskRequest("alpha", "beta", "rejected")
	transport := NewHTTPTransport()

	_, err := transport.Deliver(context.Background(), server.URL, env)
	if err == nil {
		t.Fatal("Expected error on 503")
	}
	if !core.IsRetryable(err) {
		t.Errorf("Rejection should be retryable, got %v", err)
	}
}

func TestHTTPTransportDeliverUnreachable(t *testing.T) {
	env, _ := core.NewTaskRequest("alpha", "beta", "nowhere")
	transport := NewHTTPTransport()

	_, err := transport.Deliver(context.Background(), "http://127.0.0.1:1", env)
	if err == nil {
		t.Fatal("Expected error for unreachable endpoint")
	}
	if !core.IsRetryable(err) {
		t.Errorf("Connection failure should be retryable, got %v", err)
	}
}
