package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/tracker/pkg/jobs"
)

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background maintenance jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run every maintenance job once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			s := jobs.NewScheduler(opts.logger, a.metrics)
			err = jobs.RegisterMaintenance(s, jobs.Schedules{
				InvitationPurge: opts.cfg.Jobs.InvitationPurgeSchedule,
				TokenCleanup:    opts.cfg.Jobs.TokenCleanupSchedule,
			}, a.service, a.tokens)
			if err != nil {
				return err
			}
			if err := s.RunAll(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "maintenance complete")
			return nil
		},
	})
	return cmd
}
