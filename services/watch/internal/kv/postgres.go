package kv

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table PostgresStorage writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS kv_items (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage persists items in the kv_items table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

// Migrate creates kv_items when missing.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_items WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *PostgresStorage) SetItem(ctx context.Context, key, value string) error {
	const q = `INSERT INTO kv_items (key, value, updated_at)
	           VALUES ($1, $2, now())
	           ON CONFLICT (key) DO UPDATE SET
	             value = EXCLUDED.value,
	             updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, q, key, value)
	return err
}

func (s *PostgresStorage) RemoveItem(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kv_items WHERE key = $1`, key)
	return err
}
