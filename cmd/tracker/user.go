package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/tracker/pkg/tracker"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCmd(opts), newUserGetCmd(opts))
	return cmd
}

func newUserCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		id          string
		handle      string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user, or update an existing one by id",
		Example: `  tracker user create --handle alice --display-name "Alice Liddell"
  tracker user create --id 6f1c... --handle alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := &tracker.User{ID: uuid.New(), Handle: handle, DisplayName: displayName}
			if id != "" {
				parsed, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
				u.ID = parsed
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.EnsureUser(ctx, u); err != nil {
				return err
			}
			return printJSON(cmd, u)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (default: generated)")
	cmd.Flags().StringVar(&handle, "handle", "", "unique handle")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name (default: the handle)")
	cmd.MarkFlagRequired("handle")
	return cmd
}

func newUserGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.service.GetUser(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, u)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
