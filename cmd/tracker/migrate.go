package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/tracker/pkg/storage"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations.

On Postgres the migrations install the accessible-project resolver function
and the row-level security policies, so run them as the role that owns the
schema, not as the application role.`,
		Example: `  # Migrate the configured database
  tracker migrate

  # Migrate Postgres as the schema owner
  tracker migrate --db postgres://tracker_owner@db/tracker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			if dsn != "" {
				if cfg.Storage.Driver == storage.DriverPostgres {
					cfg.Storage.PostgresURL = dsn
				} else {
					cfg.Storage.SQLitePath = dsn
				}
				cfg.Storage.ResolverURL = ""
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.close()

			if err := storage.RunMigrations(ctx, db.primary, db.driver, opts.logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", db.driver)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "db", "", "database URL or SQLite path (overrides configuration)")
	return cmd
}
