package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/trivia/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Store struct {
		Driver string
		Prefix string
		TTL    time.Duration
		Addrs  []string
	}
}

func defaults() testConfig {
	var c testConfig
	c.HTTP.Port = 8080
	c.Store.Driver = "memory"
	c.Store.Prefix = "trivia"
	return c
}

func TestLoad(t *testing.T) {
	type (
		inputs struct {
			file string
			opts []config.Option
		}
		outputs struct {
			c   testConfig
			err error
		}
	)

	tests := map[string]struct {
		arrange func(t *testing.T) inputs
		assert  func(t *testing.T, out outputs)
	}{
		"defaults only": {
			arrange: func(t *testing.T) inputs {
				return inputs{}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, int32(8080), out.c.HTTP.Port)
				assert.Equal(t, "memory", out.c.Store.Driver)
				assert.Equal(t, "trivia", out.c.Store.Prefix)
				assert.Zero(t, out.c.Store.TTL)
				assert.Empty(t, out.c.Store.Addrs)
			},
		},
		"file overrides defaults": {
			arrange: func(t *testing.T) inputs {
				return inputs{file: writeFile(t, "store:\n  driver: redis\n  ttl: 1h\n  addrs: [localhost:6379]\n")}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, int32(8080), out.c.HTTP.Port)
				assert.Equal(t, "redis", out.c.Store.Driver)
				assert.Equal(t, "trivia", out.c.Store.Prefix)
				assert.Equal(t, time.Hour, out.c.Store.TTL)
				assert.Equal(t, []string{"localhost:6379"}, out.c.Store.Addrs)
			},
		},
		"env overrides file": {
			arrange: func(t *testing.T) inputs {
				t.Setenv("TRIVIA_HTTP_PORT", "9000")
				t.Setenv("TRIVIA_STORE_DRIVER", "sqlite")
				return inputs{
					file: writeFile(t, "store:\n  driver: redis\n"),
					opts: []config.Option{config.WithEnvPrefix("TRIVIA")},
				}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, int32(9000), out.c.HTTP.Port)
				assert.Equal(t, "sqlite", out.c.Store.Driver)
			},
		},
		"missing file": {
			arrange: func(t *testing.T) inputs {
				return inputs{file: filepath.Join(t.TempDir(), "missing.yaml")}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Error(t, out.err)
			},
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			in := tc.arrange(t)

			c := defaults()
			err := config.Load(in.file, &c, in.opts...)

			tc.assert(t, outputs{c: c, err: err})
		})
	}
}

func writeFile(t *testing.T, content string) string {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
