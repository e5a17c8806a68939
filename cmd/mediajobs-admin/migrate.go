package main

import (
	"context"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/mmk-media-jobs/internal/bootstrap"
	"github.com/target/mmk-media-jobs/internal/migrate"
)

const defaultMigrationTimeout = 5 * time.Minute

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultMigrationTimeout)
			defer cancel()
			if err := bootstrap.RunMigrations(ctx, db, a.logger); err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "migrations applied\n")
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			migrations, err := migrate.Status(cmd.Context(), db)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if err := writef(w, "VERSION\tAPPLIED AT\n"); err != nil {
				return err
			}
			for _, m := range migrations {
				applied := "pending"
				if m.AppliedAt != nil {
					applied = m.AppliedAt.UTC().Format(time.RFC3339)
				}
				if err := writef(w, "%s\t%s\n", m.Version, applied); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	})
	return cmd
}
