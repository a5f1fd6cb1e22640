package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddleware wraps an HTTP handler so every request runs inside
// a server span, with trace context extracted from incoming headers.
func TracingMiddleware(handler http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(handler, operation)
}

// NewTracedHTTPClient returns an HTTP client whose requests carry
// client spans and propagate trace context to the remote side. Pass it
// to registry and transport components via their SetHTTPClient hooks.
func NewTracedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
