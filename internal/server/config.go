package server

import (
	"fmt"
	"slices"
	"time"

	"github.com/victornm/trivia/internal/store/postgres"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var drivers = []string{DriverMemory, DriverRedis, DriverSQLite, DriverPostgres}

type Config struct {
	HTTP struct {
		Port int32
		// CORSOrigins lists the browser origins allowed to call the API.
		CORSOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		Driver string
		Prefix string

		Redis struct {
			Addrs []string
			Pass  string
			TTL   time.Duration
		}

		SQLite struct {
			Path string
		}

		Postgres postgres.Config
	}

	// Pubsub receives user notifications. Notifications are off without addresses.
	Pubsub struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Quiz struct {
		// Catalog is a YAML question catalog replacing the built-in one.
		Catalog     string
		UnlockAll   bool
		SeedSample  bool
		ServerTimer bool
	}

	Log struct {
		Level  string
		Format string
	}
}

// DefaultConfig runs everything in memory with the sample leaderboard.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.HTTP.CORSOrigins = []string{"*"}
	c.GRPC.Port = 9090
	c.Store.Driver = DriverMemory
	c.Store.Prefix = "trivia"
	c.Store.SQLite.Path = "trivia.db"
	c.Pubsub.Prefix = "trivia"
	c.Quiz.SeedSample = true
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

func (c Config) Validate() error {
	if !slices.Contains(drivers, c.Store.Driver) {
		return fmt.Errorf("store: unknown driver %q, want one of %v", c.Store.Driver, drivers)
	}

	switch c.Store.Driver {
	case DriverRedis:
		if len(c.Store.Redis.Addrs) == 0 {
			return fmt.Errorf("store: redis driver needs at least one address")
		}
	case DriverPostgres:
		if c.Store.Postgres.Addr == "" || c.Store.Postgres.Name == "" {
			return fmt.Errorf("store: postgres driver needs an address and a database name")
		}
	}

	if c.HTTP.Port <= 0 || c.GRPC.Port <= 0 {
		return fmt.Errorf("ports must be positive")
	}

	return nil
}
