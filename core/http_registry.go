package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPRegistry delegates discovery to a remote registry over the HTTP
// wire protocol: POST /agents, DELETE /agents/{id}, GET /agents/{id},
// GET /agents?capabilities=a,b,c and GET /health.
//
// Like every Registry, it absorbs all failures: transport errors and
// non-2xx statuses degrade to false/nil/empty with a logged diagnostic.
type HTTPRegistry struct {
	endpoint string
	client   *http.Client
	logger   Logger
}

// agentList is the wire shape of a discovery listing.
type agentList struct {
	Agents []*AgentCard `json:"agents"`
	Count  int          `json:"count"`
}

// NewHTTPRegistry creates a delegated registry client for the given base
// endpoint, e.g. "http://discovery:8080".
func NewHTTPRegistry(endpoint string) *HTTPRegistry {
	return &HTTPRegistry{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: &NoOpLogger{},
	}
}

// SetLogger configures the logger for registry operations.
func (r *HTTPRegistry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetHTTPClient replaces the underlying HTTP client, e.g. with a traced
// one from the telemetry package.
func (r *HTTPRegistry) SetHTTPClient(client *http.Client) {
	if client != nil {
		r.client = client
	}
}

// Register forwards the card to the remote registry. Any non-2xx status
// or transport error yields false, never an error to the caller.
func (r *HTTPRegistry) Register(ctx context.Context, card *AgentCard) bool {
	if card == nil || card.AgentID == "" {
		return false
	}

	body, err := json.Marshal(card)
	if err != nil {
		r.logger.Error("Failed to marshal agent card", map[string]interface{}{
			"agent_id": card.AgentID,
			"error":    err.Error(),
		})
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/agents", bytes.NewReader(body))
	if err != nil {
		r.logger.Error("Failed to build register request", map[string]interface{}{
			"agent_id": card.AgentID,
			"error":    err.Error(),
		})
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Register request failed", map[string]interface{}{
			"agent_id": card.AgentID,
			"endpoint": r.endpoint,
			"error":    err.Error(),
		})
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		r.logger.Error("Remote registry rejected registration", map[string]interface{}{
			"agent_id": card.AgentID,
			"status":   resp.StatusCode,
		})
		return false
	}

	r.logger.Info("Agent registered with remote registry", map[string]interface{}{
		"agent_id": card.AgentID,
		"endpoint": r.endpoint,
	})
	return true
}

// Unregister removes the agent from the remote registry. A 404 counts as
// success since the registration is gone either way.
func (r *HTTPRegistry) Unregister(ctx context.Context, agentID string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.agentURL(agentID), nil)
	if err != nil {
		r.logger.Error("Failed to build unregister request", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Unregister request failed", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return true
	default:
		r.logger.Error("Remote registry rejected unregistration", map[string]interface{}{
			"agent_id": agentID,
			"status":   resp.StatusCode,
		})
		return false
	}
}

// Get fetches a single card. Absent agents (404) return nil.
func (r *HTTPRegistry) Get(ctx context.Context, agentID string) *AgentCard {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.agentURL(agentID), nil)
	if err != nil {
		return nil
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Get agent request failed", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Error("Get agent returned unexpected status", map[string]interface{}{
			"agent_id": agentID,
			"status":   resp.StatusCode,
		})
		return nil
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		r.logger.Error("Failed to decode agent card", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return nil
	}
	return &card
}

// Discover forwards the capability filter as a comma-joined query
// parameter and trusts the remote's matching semantics.
func (r *HTTPRegistry) Discover(ctx context.Context, capabilities []string) []*AgentCard {
	u := r.endpoint + "/agents"
	if len(capabilities) > 0 {
		u += "?capabilities=" + url.QueryEscape(strings.Join(capabilities, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return []*AgentCard{}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Discover request failed", map[string]interface{}{
			"endpoint": r.endpoint,
			"error":    err.Error(),
		})
		return []*AgentCard{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Error("Discover returned unexpected status", map[string]interface{}{
			"status": resp.StatusCode,
		})
		return []*AgentCard{}
	}

	var list agentList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		r.logger.Error("Failed to decode discovery listing", map[string]interface{}{
			"error": err.Error(),
		})
		return []*AgentCard{}
	}
	if list.Agents == nil {
		return []*AgentCard{}
	}
	return list.Agents
}

// HealthCheck issues a lightweight status call to the remote registry.
func (r *HTTPRegistry) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Registry health check failed", map[string]interface{}{
			"endpoint": r.endpoint,
			"error":    err.Error(),
		})
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (r *HTTPRegistry) agentURL(agentID string) string {
	return fmt.Sprintf("%s/agents/%s", r.endpoint, url.PathEscape(agentID))
}
