package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/agentmesh/agentmesh/core"
)

// RedisStore implements Store on Redis. Each record is stored as a JSON
// string under the key pattern {prefix}:task:{task_id}.
type RedisStore struct {
	client *redis.Client
	config RedisStoreConfig
	logger core.Logger
}

// RedisStoreConfig configures the Redis task store.
type RedisStoreConfig struct {
	// KeyPrefix is the prefix for all task keys. Default: "agentmesh".
	KeyPrefix string `json:"key_prefix"`

	// TTL is how long records survive after their last write.
	// Default: 24 hours.
	TTL time.Duration `json:"ttl"`
}

// DefaultRedisStoreConfig returns the default store configuration.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		KeyPrefix: "agentmesh",
		TTL:       24 * time.Hour,
	}
}

// NewRedisStore creates a Redis-backed task store. The client should
// already be connected; the store never closes it.
func NewRedisStore(client *redis.Client, config *RedisStoreConfig) *RedisStore {
	if config == nil {
		defaultConfig := DefaultRedisStoreConfig()
		config = &defaultConfig
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "agentmesh"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	return &RedisStore{
		client: client,
		config: *config,
		logger: &core.NoOpLogger{},
	}
}

// NewRedisStoreFromURL connects to Redis and creates a store on top.
func NewRedisStoreFromURL(redisURL string, config *RedisStoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStore(client, config), nil
}

// SetLogger sets the logger for store operations.
func (s *RedisStore) SetLogger(logger core.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

func (s *RedisStore) taskKey(taskID string) string {
	return fmt.Sprintf("%s:task:%s", s.config.KeyPrefix, taskID)
}

// Save inserts or replaces the record, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	if record == nil || record.TaskID == "" {
		return errors.New("record must have a task id")
	}

	clone := record.Copy()
	clone.UpdatedAt = time.Now()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = clone.UpdatedAt
	}

	data, err := json.Marshal(clone)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	if err := s.client.Set(ctx, s.taskKey(record.TaskID), data, s.config.TTL).Err(); err != nil {
		s.logger.Error("Failed to save task", map[string]interface{}{
			"task_id": record.TaskID,
			"error":   err.Error(),
		})
		return fmt.Errorf("failed to save task: %w", err)
	}

	s.logger.Debug("Task saved", map[string]interface{}{
		"task_id": record.TaskID,
		"status":  record.Status,
	})
	return nil
}

// Get retrieves a record by task id. Returns ErrTaskNotFound when the
// key is absent.
func (s *RedisStore) Get(ctx context.Context, taskID string) (*Record, error) {
	if taskID == "" {
		return nil, errors.New("task id cannot be empty")
	}

	data, err := s.client.Get(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTaskNotFound
		}
		s.logger.Error("Failed to get task", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}
	return &record, nil
}

// Delete removes the record, reporting whether a key was deleted.
// Deleting an absent id is not an error.
func (s *RedisStore) Delete(ctx context.Context, taskID string) (bool, error) {
	if taskID == "" {
		return false, errors.New("task id cannot be empty")
	}

	deleted, err := s.client.Del(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		s.logger.Error("Failed to delete task", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return deleted > 0, nil
}

// ListByStatus returns all records with the given status. This scans
// every task key under the prefix, so use sparingly.
func (s *RedisStore) ListByStatus(ctx context.Context, status string) ([]*Record, error) {
	pattern := fmt.Sprintf("%s:task:*", s.config.KeyPrefix)

	var records []*Record
	var cursor uint64
	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan tasks: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}

			var record Record
			if err := json.Unmarshal([]byte(data), &record); err != nil {
				continue
			}
			if record.Status == status {
				records = append(records, &record)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return records, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
