package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/willemschots/volunteerhub/internal/org"
)

func newTenantCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	cmd.AddCommand(newTenantCreateCommand(opts))
	cmd.AddCommand(newTenantListCommand(opts))

	return cmd
}

func newTenantCreateCommand(opts *rootOptions) *cobra.Command {
	var n org.NewTenant

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withOrg(cmd.Context(), func(ctx context.Context, svc *org.Service) error {
				t, err := svc.CreateTenant(ctx, n)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&n.Name, "name", "", "name of the tenant")
	cmd.Flags().StringVar(&n.Slug, "slug", "", "slug used by members to request portal access")

	return cmd
}

func newTenantListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withOrg(cmd.Context(), func(ctx context.Context, svc *org.Service) error {
				tenants, err := svc.ListTenants(ctx)
				if err != nil {
					return err
				}

				for _, t := range tenants {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Slug, t.Name)
				}
				return nil
			})
		},
	}
}
