package comm

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/agentmesh/core"
	"github.com/agentmesh/agentmesh/resilience"
)

// connectionEntry is one cached connection handle. At most one entry
// exists per target at any instant; concurrent resolutions for the same
// previously-uncached target race benignly, last writer wins.
type connectionEntry struct {
	agentID  string
	endpoint string
	lastUsed time.Time
}

// ConnectionManager resolves targets through a discovery registry,
// caches connection handles, delivers envelopes with bounded retries and
// records every attempt in a bounded history.
type ConnectionManager struct {
	agentID   string
	registry  core.Registry
	transport Transport
	retry     *resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	telemetry core.Telemetry
	logger    core.Logger

	cacheTTL time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cache   map[string]*connectionEntry
	history *sendHistory
	now     func() time.Time
}

// BroadcastResult is one target's outcome in a broadcast: exactly one of
// Response and Err is set.
type BroadcastResult struct {
	Response *Response
	Err      error
}

// ManagerOption configures a ConnectionManager.
type ManagerOption func(*ConnectionManager)

// WithTransport replaces the delivery transport.
func WithTransport(transport Transport) ManagerOption {
	return func(m *ConnectionManager) {
		if transport != nil {
			m.transport = transport
		}
	}
}

// WithLogger configures the logger.
func WithLogger(logger core.Logger) ManagerOption {
	return func(m *ConnectionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRetryConfig injects the retry policy used per send.
func WithRetryConfig(config *resilience.RetryConfig) ManagerOption {
	return func(m *ConnectionManager) {
		if config != nil {
			m.retry = config
		}
	}
}

// WithCircuitBreaker guards transport attempts with a circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ManagerOption {
	return func(m *ConnectionManager) { m.breaker = cb }
}

// WithTelemetry records send metrics through the given sink.
func WithTelemetry(telemetry core.Telemetry) ManagerOption {
	return func(m *ConnectionManager) {
		if telemetry != nil {
			m.telemetry = telemetry
		}
	}
}

// WithCacheTTL bounds the age of cached connection handles.
func WithCacheTTL(ttl time.Duration) ManagerOption {
	return func(m *ConnectionManager) {
		if ttl > 0 {
			m.cacheTTL = ttl
		}
	}
}

// WithHistorySize caps the send-record ring buffer.
func WithHistorySize(n int) ManagerOption {
	return func(m *ConnectionManager) {
		if n > 0 {
			m.history = newSendHistory(n)
		}
	}
}

// WithAttemptTimeout bounds each transport attempt.
func WithAttemptTimeout(timeout time.Duration) ManagerOption {
	return func(m *ConnectionManager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// NewConnectionManager creates a manager for the given local agent id.
func NewConnectionManager(agentID string, registry core.Registry, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		agentID:   agentID,
		registry:  registry,
		transport: NewHTTPTransport(),
		retry:     resilience.DeliveryRetryConfig(3),
		telemetry: &core.NoOpTelemetry{},
		logger:    &core.NoOpLogger{},
		cacheTTL:  300 * time.Second,
		timeout:   30 * time.Second,
		cache:     make(map[string]*connectionEntry),
		history:   newSendHistory(1000),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewConnectionManagerFromConfig builds a manager from the shared config.
func NewConnectionManagerFromConfig(config *core.Config, registry core.Registry, opts ...ManagerOption) *ConnectionManager {
	if config == nil {
		config = core.DefaultConfig()
	}
	base := []ManagerOption{
		WithCacheTTL(config.CacheTTL),
		WithHistorySize(config.HistorySize),
		WithAttemptTimeout(config.RequestTimeout),
		WithRetryConfig(resilience.DeliveryRetryConfig(config.MaxRetries)),
	}
	return NewConnectionManager(config.Name, registry, append(base, opts...)...)
}

// Send resolves the target through the registry (cache-first), delivers
// the envelope with retries, and records every attempt. An unknown
// target or missing messaging endpoint fails immediately; transport
// failures are retried up to the budget before the last error surfaces
// wrapped in core.ErrMaxRetriesExceeded.
func (m *ConnectionManager) Send(ctx context.Context, targetAgentID string, env *core.Envelope) (*Response, error) {
	endpoint, err := m.resolve(ctx, targetAgentID)
	if err != nil {
		m.logger.Error("Failed to resolve send target", map[string]interface{}{
			"target": targetAgentID,
			"error":  err.Error(),
		})
		m.recordAttempt(env, nil, err)
		return nil, err
	}

	config := *m.retry
	if env.MaxRetries > 0 {
		config.MaxAttempts = env.MaxRetries
	}

	var response *Response
	err = resilience.Retry(ctx, &config, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		ack, attemptErr := m.deliver(attemptCtx, endpoint, env)
		m.recordAttempt(env, ack, attemptErr)
		if attemptErr != nil {
			env.RetryCount++
			m.logger.Warn("Delivery attempt failed", map[string]interface{}{
				"message_id": env.MessageID,
				"target":     targetAgentID,
				"attempt":    env.RetryCount,
				"error":      attemptErr.Error(),
			})
			return attemptErr
		}
		response = ack
		return nil
	})
	if err != nil {
		m.telemetry.RecordMetric("comm.send.failed", 1, map[string]string{"target": targetAgentID})
		return nil, core.NewAgentError("comm.Send", "transport", err)
	}

	m.telemetry.RecordMetric("comm.send.delivered", 1, map[string]string{"target": targetAgentID})
	m.logger.Info("Envelope delivered", map[string]interface{}{
		"message_id": env.MessageID,
		"type":       env.Type,
		"target":     targetAgentID,
	})
	return response, nil
}

// Broadcast delivers an independent copy of the envelope to each target
// concurrently. One target's failure never aborts the others and the
// call itself never fails; callers inspect the result map per target.
// An empty target list returns an empty map.
func (m *ConnectionManager) Broadcast(ctx context.Context, env *core.Envelope, targets []string) map[string]BroadcastResult {
	results := make(map[string]BroadcastResult, len(targets))
	if len(targets) == 0 {
		return results
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()

			clone := env.Copy()
			clone.ToAgent = target

			response, err := m.Send(ctx, target, clone)
			mu.Lock()
			results[target] = BroadcastResult{Response: response, Err: err}
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	return results
}

// HealthCheck delegates to the registry's health check and purges stale
// connection cache entries as a side effect.
func (m *ConnectionManager) HealthCheck(ctx context.Context) bool {
	healthy := m.registry.HealthCheck(ctx)
	m.purgeStale()
	return healthy
}

// History returns a snapshot of the send records, oldest first.
func (m *ConnectionManager) History() []SendRecord {
	return m.history.snapshot()
}

// CacheSize returns the number of cached connection handles.
func (m *ConnectionManager) CacheSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// resolve returns the messaging endpoint for a target: a fresh cache
// entry is reused, anything else goes through discovery. The registry
// round-trip happens outside the lock, so two concurrent resolutions of
// the same target may both look up and insert; the handles are
// equivalent and the second insert simply wins.
func (m *ConnectionManager) resolve(ctx context.Context, targetAgentID string) (string, error) {
	now := m.now()

	m.mu.Lock()
	if entry, ok := m.cache[targetAgentID]; ok {
		if now.Sub(entry.lastUsed) < m.cacheTTL {
			entry.lastUsed = now
			m.mu.Unlock()
			m.logger.Debug("Connection cache hit", map[string]interface{}{
				"target": targetAgentID,
			})
			return entry.endpoint, nil
		}
		delete(m.cache, targetAgentID)
	}
	m.mu.Unlock()

	card := m.registry.Get(ctx, targetAgentID)
	if card == nil {
		return "", &core.AgentError{
			Op:   "comm.resolve",
			Kind: "registry",
			ID:   targetAgentID,
			Err:  core.ErrAgentNotFound,
		}
	}

	endpoint := card.Endpoint(core.ProtocolMessaging)
	if endpoint == "" {
		return "", &core.AgentError{
			Op:   "comm.resolve",
			Kind: "registry",
			ID:   targetAgentID,
			Err:  core.ErrNoEndpoint,
		}
	}

	m.mu.Lock()
	m.cache[targetAgentID] = &connectionEntry{
		agentID:  targetAgentID,
		endpoint: endpoint,
		lastUsed: m.now(),
	}
	m.mu.Unlock()

	m.logger.Debug("Connection cached", map[string]interface{}{
		"target":   targetAgentID,
		"endpoint": endpoint,
	})
	return endpoint, nil
}

func (m *ConnectionManager) deliver(ctx context.Context, endpoint string, env *core.Envelope) (*Response, error) {
	if m.breaker == nil {
		return m.transport.Deliver(ctx, endpoint, env)
	}

	var response *Response
	err := m.breaker.Execute(ctx, func() error {
		ack, deliverErr := m.transport.Deliver(ctx, endpoint, env)
		if deliverErr != nil {
			return deliverErr
		}
		response = ack
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (m *ConnectionManager) recordAttempt(env *core.Envelope, response *Response, err error) {
	record := SendRecord{
		MessageID: env.MessageID,
		FromAgent: env.FromAgent,
		ToAgent:   env.ToAgent,
		Type:      env.Type,
		Timestamp: m.now(),
		Response:  response,
	}
	if err != nil {
		record.Status = SendStatusFailed
		record.Error = err.Error()
	} else {
		record.Status = SendStatusSent
	}
	m.history.append(record)
}

// purgeStale evicts connection entries older than the cache TTL.
func (m *ConnectionManager) purgeStale() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.cache {
		if now.Sub(entry.lastUsed) > m.cacheTTL {
			delete(m.cache, id)
			m.logger.Debug("Stale connection evicted", map[string]interface{}{
				"target": id,
			})
		}
	}
}
