// Package redis stores values in Redis strings.
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/store"
)

type Config struct {
	Redis redis.UniversalClient
	// TTL expires every written key when positive.
	TTL time.Duration
}

type KV struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func New(c Config) *KV {
	return &KV{
		redis: c.Redis,
		ttl:   c.TTL,
	}
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.redis.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}

	return b, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redis.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}

	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}

	return nil
}

func (s *KV) Close() error {
	return s.redis.Close()
}
