// Package cli wires the trivia commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/victornm/trivia/internal/config"
	"github.com/victornm/trivia/internal/server"
)

const envPrefix = "TRIVIA"

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "trivia",
		Short:        "Trivia quiz engine with levels, streaks and a leaderboard",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config, defaults to $CONFIG_PATH")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newPlayCmd(&configPath))
	cmd.AddCommand(newLeaderboardCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))
	return cmd
}

// loadConfig layers the config file and TRIVIA_* environment variables over the defaults,
// then installs the configured logger.
func loadConfig(path string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(path, &c, config.WithEnvPrefix(envPrefix)); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	if err := setupLogger(c); err != nil {
		return c, err
	}

	return c, nil
}

func setupLogger(c server.Config) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch c.Log.Format {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("log format: unknown %q", c.Log.Format)
	}

	slog.SetDefault(slog.New(h))
	return nil
}
