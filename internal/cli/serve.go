package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/trivia/internal/server"
	"github.com/victornm/trivia/internal/store/postgres"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP, WebSocket and gRPC APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			return serve(cmd.Context(), c)
		},
	}
}

func serve(ctx context.Context, c server.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	if c.Store.Driver == server.DriverPostgres {
		if err := postgres.Migrate(ctx, c.Store.Postgres); err != nil {
			return err
		}
	}

	s, err := server.Init(ctx, c)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		return <-errc
	case err := <-errc:
		s.Shutdown()
		return err
	}
}
