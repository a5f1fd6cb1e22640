package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRegistry is the durable registry variant. It persists each
// RegistryEntry under {namespace}:agents:{agent_id} with a Redis TTL
// matching the registration TTL, so expiry needs no sweep at all, and
// maintains capability SET indexes for discovery.
type RedisRegistry struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    Logger
}

// NewRedisRegistry creates a Redis-backed registry with the default
// namespace.
func NewRedisRegistry(redisURL string) (*RedisRegistry, error) {
	return NewRedisRegistryWithNamespace(redisURL, "agentmesh")
}

// NewRedisRegistryWithNamespace creates a Redis-backed registry with a
// custom key namespace.
func NewRedisRegistryWithNamespace(redisURL, namespace string) (*RedisRegistry, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 100 * time.Millisecond
	opt.MaxRetryBackoff = time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", ErrConnectionFailed)
	}

	return &RedisRegistry{
		client:    client,
		namespace: namespace,
		ttl:       DefaultRegistryTTL,
		logger:    &NoOpLogger{},
	}, nil
}

// SetLogger configures the logger for registry operations.
func (r *RedisRegistry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetTTL overrides the registration TTL for subsequent registrations.
func (r *RedisRegistry) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		r.ttl = ttl
	}
}

func (r *RedisRegistry) agentKey(agentID string) string {
	return fmt.Sprintf("%s:agents:%s", r.namespace, agentID)
}

func (r *RedisRegistry) capabilityKey(capability string) string {
	return fmt.Sprintf("%s:capabilities:%s", r.namespace, capability)
}

// Register stores the entry and its capability indexes atomically.
func (r *RedisRegistry) Register(ctx context.Context, card *AgentCard) bool {
	if card == nil || card.AgentID == "" {
		return false
	}

	entry := &RegistryEntry{
		Card:         card,
		RegisteredAt: time.Now().UTC(),
		TTL:          r.ttl,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		r.logger.Error("Failed to marshal registry entry", map[string]interface{}{
			"agent_id": card.AgentID,
			"error":    err.Error(),
		})
		return false
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.agentKey(card.AgentID), data, r.ttl)
	for _, capability := range card.Capabilities {
		capKey := r.capabilityKey(capability)
		pipe.SAdd(ctx, capKey, card.AgentID)
		// Index outlives the entry so expired ids are filtered on read
		// rather than left dangling forever.
		pipe.Expire(ctx, capKey, r.ttl*2)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to register agent in Redis", map[string]interface{}{
			"agent_id": card.AgentID,
			"error":    err.Error(),
		})
		return false
	}

	r.logger.Info("Agent registered in Redis", map[string]interface{}{
		"agent_id":     card.AgentID,
		"capabilities": len(card.Capabilities),
		"ttl":          r.ttl.String(),
	})
	return true
}

// Unregister removes the entry and its index memberships. Unknown ids
// are a no-op.
func (r *RedisRegistry) Unregister(ctx context.Context, agentID string) bool {
	key := r.agentKey(agentID)

	// Fetch first to clean up capability indexes.
	if data, err := r.client.Get(ctx, key).Result(); err == nil {
		var entry RegistryEntry
		if json.Unmarshal([]byte(data), &entry) == nil && entry.Card != nil {
			for _, capability := range entry.Card.Capabilities {
				r.client.SRem(ctx, r.capabilityKey(capability), agentID)
			}
		}
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Failed to unregister agent from Redis", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return false
	}
	return true
}

// Get returns the card for an agent. Redis TTL handles expiry, so an
// expired entry is simply absent.
func (r *RedisRegistry) Get(ctx context.Context, agentID string) *AgentCard {
	data, err := r.client.Get(ctx, r.agentKey(agentID)).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Error("Failed to read agent from Redis", map[string]interface{}{
				"agent_id": agentID,
				"error":    err.Error(),
			})
		}
		return nil
	}

	var entry RegistryEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		r.logger.Error("Failed to unmarshal registry entry", map[string]interface{}{
			"agent_id": agentID,
			"error":    err.Error(),
		})
		return nil
	}
	return entry.Card
}

// Discover returns all live cards, or the union of capability index
// members when a filter is given (OR semantics).
func (r *RedisRegistry) Discover(ctx context.Context, capabilities []string) []*AgentCard {
	ids, err := r.candidateIDs(ctx, capabilities)
	if err != nil {
		r.logger.Error("Failed to enumerate agents in Redis", map[string]interface{}{
			"error": err.Error(),
		})
		return []*AgentCard{}
	}

	cards := make([]*AgentCard, 0, len(ids))
	for _, id := range ids {
		if card := r.Get(ctx, id); card != nil {
			cards = append(cards, card)
		}
	}
	return cards
}

// candidateIDs resolves the set of agent ids to load: the capability
// index union when filtering, otherwise a key scan.
func (r *RedisRegistry) candidateIDs(ctx context.Context, capabilities []string) ([]string, error) {
	if len(capabilities) > 0 {
		seen := make(map[string]bool)
		var ids []string
		for _, capability := range capabilities {
			members, err := r.client.SMembers(ctx, r.capabilityKey(capability)).Result()
			if err != nil {
				return nil, err
			}
			for _, id := range members {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
		return ids, nil
	}

	pattern := fmt.Sprintf("%s:agents:*", r.namespace)
	prefix := fmt.Sprintf("%s:agents:", r.namespace)
	var ids []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			ids = append(ids, key[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// HealthCheck pings Redis.
func (r *RedisRegistry) HealthCheck(ctx context.Context) bool {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Error("Redis registry health check failed", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Close releases the Redis connection pool.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
