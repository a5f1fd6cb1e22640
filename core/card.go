package core

import (
	"time"
)

// ProtocolMessaging is the endpoint key agents publish for the
// agent-to-agent messaging protocol.
const ProtocolMessaging = "messaging"

// AgentCard is the published identity and routing record for one agent.
// A card is created on startup and is immutable once registered;
// re-registration replaces it wholesale.
type AgentCard struct {
	AgentID      string                 `json:"agent_id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Capabilities []string               `json:"capabilities"`
	Endpoints    map[string]string      `json:"endpoints"`
	Version      string                 `json:"version,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Endpoint returns the address registered for a protocol, or "" if the
// card does not publish one.
func (c *AgentCard) Endpoint(protocol string) string {
	if c == nil || c.Endpoints == nil {
		return ""
	}
	return c.Endpoints[protocol]
}

// HasAnyCapability reports whether the card's capability set intersects
// the filter. An empty filter matches every card (OR semantics).
func (c *AgentCard) HasAnyCapability(capabilities []string) bool {
	if len(capabilities) == 0 {
		return true
	}
	for _, want := range capabilities {
		for _, have := range c.Capabilities {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Copy returns a copy of the card safe to hand to callers while the
// registry keeps mutating its own state.
func (c *AgentCard) Copy() *AgentCard {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Capabilities = append([]string(nil), c.Capabilities...)
	if c.Endpoints != nil {
		cp.Endpoints = make(map[string]string, len(c.Endpoints))
		for k, v := range c.Endpoints {
			cp.Endpoints[k] = v
		}
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// RegistryEntry is a card plus its registration bookkeeping. Owned
// exclusively by the registry that stores it.
type RegistryEntry struct {
	Card         *AgentCard    `json:"card"`
	RegisteredAt time.Time     `json:"registered_at"`
	TTL          time.Duration `json:"ttl"`
}

// Expired reports whether the entry's TTL elapsed without renewal.
func (e *RegistryEntry) Expired(now time.Time) bool {
	return now.Sub(e.RegisteredAt) > e.TTL
}
