// Package store is the key-value persistence substrate. Values are JSON documents;
// there are no cross-key transactions.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key holds no value.
var ErrNotFound = stderrors.New("store: key not found")

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON decodes the value under key into v. It returns ErrNotFound when the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}

	return nil
}

func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}

	return kv.Set(ctx, key, b)
}

// Keys builds namespaced storage keys.
type Keys struct {
	Prefix string
}

func (k Keys) Profile(userID string) string {
	return k.key("profile", userID)
}

func (k Keys) Progress(userID string) string {
	return k.key("progress", userID)
}

// Profiles is the collection of every known profile, read by the leaderboard.
func (k Keys) Profiles() string {
	return k.key("profiles")
}

// Leaderboard caches the unfiltered leaderboard.
func (k Keys) Leaderboard() string {
	return k.key("leaderboard")
}

func (k Keys) key(parts ...string) string {
	s := k.Prefix
	if s == "" {
		s = "trivia"
	}

	for _, p := range parts {
		s += ":" + p
	}

	return s
}
