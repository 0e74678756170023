// Package kvstore provides a Redis-backed key-value store used as the
// reference stateful service managed by the orchestrator.
package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cmatc13/conductor/pkg/config"
	"github.com/cmatc13/conductor/pkg/service"
)

const (
	// Key prefix for values written through the store.
	keyPrefix = "kv:"

	// Key prefix for janitor heartbeats.
	heartbeatKey = "system:heartbeat"
)

// Store is a Redis-backed key-value store whose lifecycle is driven by the
// orchestrator: Start opens and verifies the connection, Stop closes it,
// HealthCheck pings the server.
type Store struct {
	cfg    config.RedisConfig
	client *redis.Client
}

// NewStore creates an unconnected store. The connection is opened by Start.
func NewStore(cfg config.RedisConfig) *Store {
	return &Store{cfg: cfg}
}

// Start opens the Redis connection and verifies it with a ping.
func (s *Store) Start(ctx context.Context, _ service.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Address,
		Password: s.cfg.Password,
		DB:       s.cfg.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", s.cfg.Address, err)
	}

	s.client = client
	return nil
}

// Stop closes the Redis connection.
func (s *Store) Stop(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// HealthCheck pings the Redis server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("store is not connected")
	}
	if _, err := s.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Set writes a value with a TTL. A zero TTL means no expiry.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.client == nil {
		return fmt.Errorf("store is not connected")
	}
	return s.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

// Get reads a value. A missing key returns an empty string and no error.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("store is not connected")
	}
	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Heartbeat records the current time under the heartbeat key so operators
// can see the janitor is alive.
func (s *Store) Heartbeat(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("store is not connected")
	}
	return s.client.Set(ctx, heartbeatKey, time.Now().Format(time.RFC3339), 0).Err()
}
