package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/trivia/internal/server"
	"github.com/victornm/trivia/internal/store/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if c.Store.Driver != server.DriverPostgres {
				return fmt.Errorf("migrate: store driver is %q, migrations only apply to %q", c.Store.Driver, server.DriverPostgres)
			}

			return postgres.Migrate(cmd.Context(), c.Store.Postgres)
		},
	}
}
