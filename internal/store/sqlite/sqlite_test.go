package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/store/sqlite"
	"github.com/victornm/trivia/internal/store/storetest"
)

func TestKV(t *testing.T) {
	kv, err := sqlite.Open(filepath.Join(t.TempDir(), "trivia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	storetest.Run(t, kv)
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trivia.db")

	kv, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "k", []byte(`{"v":1}`)))
	require.NoError(t, kv.Close())

	kv, err = sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	b, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(b))
}
