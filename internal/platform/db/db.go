// Package db opens the shared Postgres pool used by the storage and
// catalog backends.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDSN is returned when no connection string was configured.
var ErrNoDSN = errors.New("DATABASE_URL is required")

const pingTimeout = 5 * time.Second

// PoolOptions bounds the pool. Zero fields take DB_MAX_CONNS and
// DB_MIN_CONNS, then 10 and 1.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
	AppName  string
}

// Open opens and pings a pgxpool for dsn.
func Open(ctx context.Context, dsn string, opts ...PoolOptions) (*pgxpool.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrNoDSN
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}
	var o PoolOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	configure(cfg, o)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: new pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return pool, nil
}

func configure(cfg *pgxpool.Config, o PoolOptions) {
	if o.MaxConns <= 0 {
		o.MaxConns = envInt32("DB_MAX_CONNS", 10)
	}
	if o.MinConns <= 0 {
		o.MinConns = envInt32("DB_MIN_CONNS", 1)
	}
	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}
	cfg.MaxConns = o.MaxConns
	cfg.MinConns = o.MinConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	if o.AppName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = o.AppName
	}
}

func envInt32(key string, fallback int32) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 32)
	if err != nil || n <= 0 {
		return fallback
	}
	return int32(n)
}
