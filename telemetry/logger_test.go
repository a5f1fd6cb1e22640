package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions("test-service", LevelInfo, "text", &buf)

	logger.Info("agent registered", map[string]interface{}{
		"agent_id": "alpha",
		"count":    3,
	})

	line := buf.String()
	if !strings.Contains(line, "[INFO]") {
		t.Errorf("Expected level marker, got %q", line)
	}
	if !strings.Contains(line, "test-service") {
		t.Errorf("Expected service name, got %q", line)
	}
	if !strings.Contains(line, "agent_id=alpha") || !strings.Contains(line, "count=3") {
		t.Errorf("Expected sorted key=value fields, got %q", line)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions("test-service", LevelInfo, "json", &buf)

	logger.Error("delivery failed", map[string]interface{}{
		"target": "beta",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" {
		t.Errorf("Unexpected level: %v", entry["level"])
	}
	if entry["message"] != "delivery failed" {
		t.Errorf("Unexpected message: %v", entry["message"])
	}
	if entry["target"] != "beta" {
		t.Errorf("Fields should be flattened into the entry: %v", entry)
	}
	if entry["service"] != "test-service" {
		t.Errorf("Unexpected service: %v", entry["service"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions("test-service", LevelWarn, "text", &buf)

	logger.Debug("invisible", nil)
	logger.Info("invisible", nil)
	if buf.Len() != 0 {
		t.Errorf("Messages below the level should be dropped, got %q", buf.String())
	}

	logger.Warn("visible", nil)
	logger.Error("visible", nil)
	lines := strings.Count(buf.String(), "\n")
	if lines != 2 {
		t.Errorf("Expected 2 emitted lines, got %d", lines)
	}
}

func TestLoggerEnvironmentConfiguration(t *testing.T) {
	t.Setenv("AGENTMESH_LOG_LEVEL", "DEBUG")
	t.Setenv("AGENTMESH_LOG_FORMAT", "json")

	logger := NewLogger("env-service")
	if logger.level != LevelDebug {
		t.Errorf("Expected DEBUG from environment, got %s", logger.level)
	}
	if logger.format != "json" {
		t.Errorf("Expected json format from environment, got %s", logger.format)
	}
}

func TestLoggerKubernetesDetection(t *testing.T) {
	t.Setenv("AGENTMESH_LOG_LEVEL", "")
	t.Setenv("AGENTMESH_LOG_FORMAT", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	logger := NewLogger("k8s-service")
	if logger.format != "json" {
		t.Errorf("Kubernetes environment should imply JSON logs, got %s", logger.format)
	}
}

func TestProviderSpans(t *testing.T) {
	provider := NewProvider("test-service")

	ctx, span := provider.StartSpan(context.Background(), "operation")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan should always return a usable span")
	}
	span.SetAttribute("key", "value")
	span.SetAttribute("count", 42)
	span.RecordError(nil)
	span.End()

	// Without an SDK installed the counter path must still be safe.
	provider.RecordMetric("test.metric", 1, map[string]string{"label": "x"})
	provider.RecordMetric("test.metric", 2, nil)
}
