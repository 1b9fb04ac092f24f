package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/trivia/internal/store"
	"github.com/victornm/trivia/internal/store/postgres"
	redisstore "github.com/victornm/trivia/internal/store/redis"
	"github.com/victornm/trivia/internal/store/sqlite"
	"github.com/victornm/trivia/internal/telemetry"
)

const connectTimeout = 10 * time.Second

// OpenStore connects the persistence driver named by the config.
func OpenStore(ctx context.Context, c Config) (store.KV, error) {
	switch c.Store.Driver {
	case DriverMemory:
		return store.NewMemory(), nil
	case DriverRedis:
		r, err := connectRedis(ctx, c.Store.Redis.Addrs, c.Store.Redis.Pass)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return redisstore.New(redisstore.Config{Redis: r, TTL: c.Store.Redis.TTL}), nil
	case DriverSQLite:
		return sqlite.Open(c.Store.SQLite.Path)
	case DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return postgres.Connect(ctx, c.Store.Postgres)
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

func connectRedis(ctx context.Context, addrs []string, pass string) (redis.UniversalClient, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		_ = r.Close()
		return nil, err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}
