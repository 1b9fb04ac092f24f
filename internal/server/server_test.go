package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/server"
	"github.com/victornm/trivia/internal/store"
)

func TestInit(t *testing.T) {
	ctx := context.Background()
	s, err := server.Init(ctx, server.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("sample leaderboard", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/leaderboard?limit=3")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var entries []struct {
			Rank int    `json:"rank"`
			ID   string `json:"id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
		require.Len(t, entries, 2)
		assert.Equal(t, 1, entries[0].Rank)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(b), "trivia_leaderboard_updates_total")
		assert.Contains(t, string(b), "go_goroutines")
	})

	t.Run("cors preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/sessions", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := map[string]struct {
		arrange func(c *server.Config)
		wantErr string
	}{
		"defaults": {
			arrange: func(c *server.Config) {},
		},
		"unknown driver": {
			arrange: func(c *server.Config) { c.Store.Driver = "mongo" },
			wantErr: "unknown driver",
		},
		"redis without address": {
			arrange: func(c *server.Config) { c.Store.Driver = server.DriverRedis },
			wantErr: "redis driver",
		},
		"postgres without database": {
			arrange: func(c *server.Config) {
				c.Store.Driver = server.DriverPostgres
				c.Store.Postgres.Addr = "localhost:5432"
			},
			wantErr: "postgres driver",
		},
		"zero port": {
			arrange: func(c *server.Config) { c.GRPC.Port = 0 },
			wantErr: "ports",
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			c := server.DefaultConfig()
			tc.arrange(&c)

			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.wantErr), err.Error())
		})
	}
}

func TestOpenStore(t *testing.T) {
	tests := map[string]func(t *testing.T) server.Config{
		"memory": func(t *testing.T) server.Config {
			return server.DefaultConfig()
		},
		"redis": func(t *testing.T) server.Config {
			c := server.DefaultConfig()
			c.Store.Driver = server.DriverRedis
			c.Store.Redis.Addrs = []string{miniredis.RunT(t).Addr()}
			return c
		},
		"sqlite": func(t *testing.T) server.Config {
			c := server.DefaultConfig()
			c.Store.Driver = server.DriverSQLite
			c.Store.SQLite.Path = filepath.Join(t.TempDir(), "trivia.db")
			return c
		},
	}

	for name, arrange := range tests {
		arrange := arrange
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			kv, err := server.OpenStore(ctx, arrange(t))
			require.NoError(t, err)
			t.Cleanup(func() { _ = kv.Close() })

			require.NoError(t, store.SetJSON(ctx, kv, "k", map[string]int{"n": 1}))

			var got map[string]int
			require.NoError(t, store.GetJSON(ctx, kv, "k", &got))
			assert.Equal(t, 1, got["n"])
		})
	}
}
