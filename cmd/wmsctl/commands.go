package main

import (
	"fmt"

	"depot-backend/internal/database"
	"depot-backend/internal/seed"
	"depot-backend/internal/tenant"

	"github.com/spf13/cobra"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(e.db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", e.cfg.DatabaseDriver)
			return nil
		},
	}
}

func newSeedCmd(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tenants, items, lorries and scales from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(e.db); err != nil {
				return err
			}
			res, err := seed.File(e.db, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"seeded %d tenants, %d users, %d categories, %d items, %d lorries, %d scales\n",
				res.Tenants, res.Users, res.Categories, res.Items, res.Lorries, res.Scales)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "seeds/demo.yaml", "Seed file")
	return cmd
}

func newProvisionCmd(e *env) *cobra.Command {
	var in tenant.ProvisionInput
	cmd := &cobra.Command{
		Use:   "provision-tenant",
		Short: "Create a tenant with its first admin and default expense categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(in.AdminPassword) < 8 {
				return fmt.Errorf("--admin-password must be at least 8 characters")
			}
			if err := database.Migrate(e.db); err != nil {
				return err
			}
			res, err := tenant.Provision(e.db, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s (id %d, slug %s) created, admin %s\n",
				res.Tenant.PublicID, res.Tenant.ID, res.Tenant.Slug, res.Admin.Email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "Tenant name")
	f.StringVar(&in.Slug, "slug", "", "URL slug, derived from the name when empty")
	f.StringVar(&in.ContactEmail, "contact-email", "", "Contact email")
	f.StringVar(&in.Phone, "phone", "", "Contact phone")
	f.StringVar(&in.AdminName, "admin-name", "", "Admin display name")
	f.StringVar(&in.AdminEmail, "admin-email", "", "Admin login email")
	f.StringVar(&in.AdminPassword, "admin-password", "", "Admin password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("admin-name")
	_ = cmd.MarkFlagRequired("admin-email")
	_ = cmd.MarkFlagRequired("admin-password")
	return cmd
}
