package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/willemschots/volunteerhub/internal"
	"github.com/willemschots/volunteerhub/internal/db/migrate"
	"github.com/willemschots/volunteerhub/migrations"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run the database migrations that did not run yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDB(func(sqlDB *sql.DB) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()

				ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS, migrate.Metadata{
					AppVersion: internal.BuildRevision,
					Timestamp:  internal.BuildRevisionTime,
				})
				if err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}

				for _, m := range ran {
					fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", m.Sequence, m.Filename)
				}

				return nil
			})
		},
	}
}
