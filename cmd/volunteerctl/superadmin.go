package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/org"
)

func newSuperAdminCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "superadmin",
		Short: "Manage super admins",
	}

	cmd.AddCommand(newSuperAdminCreateCommand(opts))

	return cmd
}

func newSuperAdminCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		rawEmail string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a super admin and print its password setup link",
		Long: `Create a super admin and print its password setup link.

The link is not emailed, hand it to the super admin yourself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := email.ParseAddress(rawEmail)
			if err != nil {
				return fmt.Errorf("invalid --email: %w", err)
			}

			return opts.withOrg(cmd.Context(), func(ctx context.Context, svc *org.Service) error {
				_, link, err := svc.CreateSuperAdmin(ctx, org.NewSuperAdmin{
					Email: addr,
					Name:  name,
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rawEmail, "email", "", "email address of the super admin")
	cmd.Flags().StringVar(&name, "name", "", "name of the super admin")

	return cmd
}
