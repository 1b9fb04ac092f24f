// Package storetest holds the behaviour every store.KV driver must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/store"
)

// Run exercises kv against the store.KV contract.
func Run(t *testing.T, kv store.KV) {
	t.Helper()

	ctx := context.Background()

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		_, err := kv.Get(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("set then get returns the value", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "k1", []byte(`{"a":1}`)))

		b, err := kv.Get(ctx, "k1")
		require.NoError(t, err)
		require.JSONEq(t, `{"a":1}`, string(b))
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "k2", []byte(`"first"`)))
		require.NoError(t, kv.Set(ctx, "k2", []byte(`"second"`)))

		b, err := kv.Get(ctx, "k2")
		require.NoError(t, err)
		require.JSONEq(t, `"second"`, string(b))
	})

	t.Run("delete removes the key", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "k3", []byte(`1`)))
		require.NoError(t, kv.Delete(ctx, "k3"))

		_, err := kv.Get(ctx, "k3")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, kv.Delete(ctx, "k3"), "deleting a missing key is not an error")
	})

	t.Run("json helpers round trip", func(t *testing.T) {
		type doc struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}

		require.NoError(t, store.SetJSON(ctx, kv, "k4", doc{Name: "x", Count: 3}))

		var got doc
		require.NoError(t, store.GetJSON(ctx, kv, "k4", &got))
		require.Equal(t, doc{Name: "x", Count: 3}, got)

		require.ErrorIs(t, store.GetJSON(ctx, kv, "k5", &got), store.ErrNotFound)
	})
}
