package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/store"
)

// rootOptions holds the global flags for all commands.
type rootOptions struct {
	dbFile  string
	baseURL string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "volunteerctl",
		Short:         "Administer a volunteerhub database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbFile, "db", "volunteerhub.db", "sqlite database file")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8888", "base url used in links")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newTenantCommand(opts))
	cmd.AddCommand(newSuperAdminCommand(opts))

	return cmd
}

// withOrg opens the database and runs f with an org service acting as
// the system. Commands don't send email, so the service has no emailer.
func (o *rootOptions) withOrg(ctx context.Context, f func(ctx context.Context, svc *org.Service) error) error {
	baseURL, err := url.Parse(o.baseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return fmt.Errorf("invalid base url %q", o.baseURL)
	}

	return o.withDB(func(sqlDB *sql.DB) error {
		tokens := access.NewService(access.DefaultConfig(baseURL))
		svc, err := org.NewService(store.New(sqlDB).Org(), tokens, nil, func(error) {}, org.ServiceConfig{
			WorkerTimeout: time.Second,
		})
		if err != nil {
			return err
		}

		return f(authz.ContextWithPrincipal(ctx, authz.System{}), svc)
	})
}

func (o *rootOptions) withDB(f func(sqlDB *sql.DB) error) (err error) {
	sqlDB, err := db.OpenSQLite(o.dbFile, true)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	defer func() {
		closeErr := sqlDB.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close database: %w", closeErr)
		}
	}()

	return f(sqlDB)
}
