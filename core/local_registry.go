package core

import (
	"context"
	"sync"
	"time"
)

// DefaultRegistryTTL is how long a registration lives without renewal.
const DefaultRegistryTTL = 300 * time.Second

// LocalRegistry is the embedded in-process registry. Entries expire
// lazily: every Get/Discover/HealthCheck purges entries whose TTL
// elapsed before the read executes, so expired cards are never returned
// even without a background sweep goroutine.
type LocalRegistry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
	ttl     time.Duration
	logger  Logger
	now     func() time.Time
}

// NewLocalRegistry creates an embedded registry with the default TTL.
func NewLocalRegistry() *LocalRegistry {
	return NewLocalRegistryWithTTL(DefaultRegistryTTL)
}

// NewLocalRegistryWithTTL creates an embedded registry with a custom TTL.
func NewLocalRegistryWithTTL(ttl time.Duration) *LocalRegistry {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	return &LocalRegistry{
		entries: make(map[string]*RegistryEntry),
		ttl:     ttl,
		logger:  &NoOpLogger{},
		now:     time.Now,
	}
}

// SetLogger configures the logger for registry operations.
func (r *LocalRegistry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register upserts the card, replacing any previous registration wholesale.
func (r *LocalRegistry) Register(ctx context.Context, card *AgentCard) bool {
	if card == nil || card.AgentID == "" {
		r.logger.Error("Rejecting registration without agent id", map[string]interface{}{
			"operation": "registry_register",
		})
		return false
	}

	r.mu.Lock()
	r.entries[card.AgentID] = &RegistryEntry{
		Card:         card.Copy(),
		RegisteredAt: r.now(),
		TTL:          r.ttl,
	}
	r.mu.Unlock()

	r.logger.Info("Agent registered", map[string]interface{}{
		"agent_id":     card.AgentID,
		"agent_name":   card.Name,
		"capabilities": len(card.Capabilities),
		"ttl":          r.ttl.String(),
	})
	return true
}

// Unregister removes the card. Unknown ids are a no-op, not an error.
func (r *LocalRegistry) Unregister(ctx context.Context, agentID string) bool {
	r.mu.Lock()
	_, existed := r.entries[agentID]
	delete(r.entries, agentID)
	r.mu.Unlock()

	r.logger.Info("Agent unregistered", map[string]interface{}{
		"agent_id": agentID,
		"existed":  existed,
	})
	return true
}

// Get returns the card for an agent, or nil if absent or expired.
func (r *LocalRegistry) Get(ctx context.Context, agentID string) *AgentCard {
	r.mu.Lock()
	r.sweepExpiredLocked()
	entry, ok := r.entries[agentID]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return entry.Card.Copy()
}

// Discover returns all live cards, optionally filtered by capability
// intersection (OR semantics: one matching capability is sufficient).
func (r *LocalRegistry) Discover(ctx context.Context, capabilities []string) []*AgentCard {
	r.mu.Lock()
	r.sweepExpiredLocked()
	cards := make([]*AgentCard, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.Card.HasAnyCapability(capabilities) {
			cards = append(cards, entry.Card.Copy())
		}
	}
	r.mu.Unlock()

	r.logger.Debug("Discovery query served", map[string]interface{}{
		"filter":  capabilities,
		"matched": len(cards),
	})
	return cards
}

// HealthCheck runs the expiry sweep and always succeeds for the
// embedded registry.
func (r *LocalRegistry) HealthCheck(ctx context.Context) bool {
	r.mu.Lock()
	r.sweepExpiredLocked()
	r.mu.Unlock()
	return true
}

// Len returns the number of live registrations.
func (r *LocalRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// sweepExpiredLocked purges entries whose TTL elapsed. Callers hold r.mu.
func (r *LocalRegistry) sweepExpiredLocked() {
	now := r.now()
	for id, entry := range r.entries {
		if entry.Expired(now) {
			delete(r.entries, id)
			r.logger.Debug("Expired registration purged", map[string]interface{}{
				"agent_id":      id,
				"registered_at": entry.RegisteredAt.Format(time.RFC3339),
			})
		}
	}
}
