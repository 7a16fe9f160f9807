package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/recountlabs/recount/internal/cli"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage tenants",
		Long:  `Create and list the tenants that invoices and transactions belong to.`,
	}

	cmd.AddCommand(tenantsAddCmd())
	cmd.AddCommand(tenantsListCmd())

	return cmd
}

func tenantsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a new tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			tenant, err := app.storage.CreateTenant(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to create tenant: %w", err)
			}

			slog.Info("Tenant created", "id", tenant.ID, "name", tenant.Name)
			cmd.Println(cli.SuccessStyle.Render(fmt.Sprintf("Created tenant %d (%s)", tenant.ID, tenant.Name)))
			return nil
		},
	}
}

func tenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			tenants, err := app.storage.ListTenants(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list tenants: %w", err)
			}

			if len(tenants) == 0 {
				cmd.Println(cli.SubtleStyle.Render("No tenants yet. Create one with 'recount tenants add <name>'."))
				return nil
			}

			cmd.Println(cli.HeaderStyle.Render(fmt.Sprintf("%-6s %-24s %-8s %s", "ID", "NAME", "ACTIVE", "CREATED")))
			for _, t := range tenants {
				cmd.Printf("%-6d %-24s %-8t %s\n", t.ID, t.Name, t.Active, t.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}
