// Package postgres stores values as JSONB rows in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/victornm/trivia/internal/store"
	"github.com/victornm/trivia/internal/store/postgres/migrations"
)

type Config struct {
	Addr string
	User string
	Pass string
	Name string
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", c.User, c.Pass, c.Addr, c.Name)
}

type KV struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *KV {
	return &KV{db: db}
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, c Config) (*KV, error) {
	cc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return New(db), nil
}

// Migrate applies every pending schema migration.
func Migrate(ctx context.Context, c Config) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(c.DSN())))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("postgres: init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}

	if group.IsZero() {
		slog.InfoContext(ctx, "postgres: no new migrations")
		return nil
	}

	slog.InfoContext(ctx, fmt.Sprintf("postgres: migrated to %s", group))
	return nil
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var b []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}

	return b, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	const stmt = `
INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at;`

	if _, err := s.db.Exec(ctx, stmt, key, value); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}

	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}

	return nil
}

func (s *KV) Close() error {
	s.db.Close()
	return nil
}
