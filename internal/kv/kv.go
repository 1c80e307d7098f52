// Package kv provides the persistent key/value medium behind the payment
// ledger and the invoice registry. Stored data is defined by key shape, not
// file format, so the medium is pluggable: a JSON file tree for development,
// sqlite for single-host durability, redis when surfaces share a host-local
// cache.
package kv

import "context"

// Store is a durable key/value store. Values are opaque blobs; callers own
// serialization. Implementations must make Put atomic per key so a reader
// never observes a torn write.
type Store interface {
	// Get returns the value for key. Absent keys return ErrKeyNotFound;
	// an unreachable medium returns an error with the unavailable code.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying medium.
	Close() error
}

// Config selects and configures the kv medium.
type Config struct {
	Provider      string // "local", "sqlite" or "redis"
	LocalPath     string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewStore creates a Store implementation based on configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalStore(cfg.LocalPath)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		return NewRedisStore(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}
