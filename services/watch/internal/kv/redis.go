package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStorage stores each key as a Redis string under Prefix.
type RedisStorage struct {
	Client *redis.Client
	Prefix string
}

func NewRedisStorage(dsn, prefix string) *RedisStorage {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return &RedisStorage{Client: redis.NewClient(opts), Prefix: prefix}
}

func (s *RedisStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := s.Client.Get(ctx, s.Prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	return s.Client.Set(ctx, s.Prefix+key, value, 0).Err()
}

func (s *RedisStorage) RemoveItem(ctx context.Context, key string) error {
	return s.Client.Del(ctx, s.Prefix+key).Err()
}

func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.Client.Close()
}
