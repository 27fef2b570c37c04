package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/movieon/internal/platform/db"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a storage backend.
type Config struct {
	Backend     string
	Dir         string
	RedisURL    string
	DatabaseURL string
	// QuotaBytes bounds the memory backend. Zero means unlimited.
	QuotaBytes int
}

// Open builds the configured backend. An empty Backend picks the best
// available one: Redis > Postgres > memory. When isProd is true the memory
// backend is refused. The returned close func is never nil.
func Open(ctx context.Context, cfg Config, isProd bool) (Storage, func(), error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		switch {
		case cfg.RedisURL != "":
			backend = BackendRedis
		case cfg.DatabaseURL != "":
			backend = BackendPostgres
		default:
			backend = BackendMemory
		}
	}

	noop := func() {}
	switch backend {
	case BackendMemory:
		if isProd {
			return nil, noop, errors.New("production requires a durable WATCH_STORAGE_BACKEND; in-memory storage is not allowed")
		}
		return NewMemoryStorage(cfg.QuotaBytes), noop, nil
	case BackendFile:
		s, err := NewFileStorage(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, noop, errors.New("REDIS_URL is required for the redis storage backend")
		}
		s := NewRedisStorage(cfg.RedisURL, "movieon:watch:")
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case BackendPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		s := NewPostgresStorage(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("migrate kv_items: %w", err)
		}
		return s, pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
