// Package sqlite stores values in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/victornm/trivia/internal/store"
)

const defaultPath = "trivia.db"

type KV struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*KV, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultPath
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: busy timeout: %w", err)
	}

	kv := &KV{db: db, now: time.Now}
	if err := kv.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return kv, nil
}

func (s *KV) initSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}

	return nil
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&b)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", key, err)
	}

	return b, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	const stmt = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`

	if _, err := s.db.ExecContext(ctx, stmt, key, value, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlite: set %s: %w", key, err)
	}

	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", key, err)
	}

	return nil
}

func (s *KV) Close() error {
	return s.db.Close()
}
