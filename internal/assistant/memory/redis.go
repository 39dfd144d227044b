package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is an optional shared store for deployments running more than one
// API replica. Same TTL semantics as InMemory; the TTL refreshes on use.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed store from a redis:// URL.
func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	return &Redis{client: redis.NewClient(opt), ttl: ttl}, nil
}

func (s *Redis) key(key string) string {
	return "assistant:memory:" + key
}

// Get returns the history for key, or nil when absent.
func (s *Redis) Get(ctx context.Context, key string) ([]Turn, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory get: %w", err)
	}

	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("memory decode: %w", err)
	}
	s.client.Expire(ctx, s.key(key), s.ttl)
	return turns, nil
}

// Append adds turns to the history for key.
func (s *Redis) Append(ctx context.Context, key string, turns ...Turn) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return s.write(ctx, key, append(existing, turns...))
}

// Seed replaces the history only when empty.
func (s *Redis) Seed(ctx context.Context, key string, turns []Turn) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return s.write(ctx, key, turns)
}

func (s *Redis) write(ctx context.Context, key string, turns []Turn) error {
	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("memory encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("memory set: %w", err)
	}
	return nil
}
