package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/tracker/pkg/config"
	"github.com/platinummonkey/tracker/pkg/observability"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// rootOptions carries state resolved in PersistentPreRunE to subcommands
type rootOptions struct {
	configFile string
	logLevel   string

	cfg    *config.Config
	logger *observability.Logger
}

const (
	groupServer = "server"
	groupAdmin  = "admin"
)

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Multi-tenant issue tracker",
		Long: `tracker - multi-tenant issue tracker

Projects, memberships, tickets and threaded comments behind a single
authorization core: every read is scoped to the projects a caller owns or
belongs to, and everything else is reported as not found.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			path := opts.configFile
			if path == "" {
				path = os.Getenv(config.ConfigFileEnv)
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Observability.LogLevel = opts.logLevel
			}

			opts.configFile = path
			opts.cfg = cfg
			opts.logger = observability.NewLogger(cfg.Observability.Level(), cmd.ErrOrStderr())
			cmd.SetContext(observability.WithLogger(cmd.Context(), opts.logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (default: $"+config.ConfigFileEnv+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	cmd.AddGroup(
		&cobra.Group{ID: groupServer, Title: "Server:"},
		&cobra.Group{ID: groupAdmin, Title: "Administration:"},
	)

	serve := newServeCmd(opts)
	serve.GroupID = groupServer
	migrate := newMigrateCmd(opts)
	migrate.GroupID = groupServer
	user := newUserCmd(opts)
	user.GroupID = groupAdmin
	token := newTokenCmd(opts)
	token.GroupID = groupAdmin
	jobs := newJobsCmd(opts)
	jobs.GroupID = groupAdmin

	cmd.AddCommand(serve, migrate, user, token, jobs, newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
