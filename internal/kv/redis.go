package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the redis medium.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store on redis, for deployments where both surfaces
// run against a shared host-local cache instead of per-process files.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a redis-backed store. The connection is verified
// lazily on first use; redis being down at startup degrades the same way as
// redis going down later.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, &StoreError{Code: codeInvalid, Message: "redis address is required"}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{client: client}, nil
}

// Get reads the value for key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound(key)
		}
		return nil, ErrUnavailable(err, fmt.Sprintf("failed to read key %s", key))
	}
	return value, nil
}

// Put stores the value for key without expiry; registry and ledger data
// persist for the lifetime of the store.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return ErrUnavailable(err, fmt.Sprintf("failed to write key %s", key))
	}
	return nil
}

// Delete removes key. Absent keys are a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return ErrUnavailable(err, fmt.Sprintf("failed to delete key %s", key))
	}
	return nil
}

// Close closes the client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
