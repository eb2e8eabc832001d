package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/tracker/pkg/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenCreateCmd(opts), newTokenListCmd(opts))
	return cmd
}

func newTokenCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		userID    string
		name      string
		scopes    []string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API token and print it once",
		Example: `  tracker token create --user 6f1c... --name laptop
  tracker token create --user 6f1c... --name ci --scopes read --expires-in 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().UTC().Add(expiresIn)
				expiresAt = &t
			}
			tokenScopes := make([]auth.Scope, len(scopes))
			for i, s := range scopes {
				tokenScopes[i] = auth.Scope(s)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			// Fail with not found rather than a foreign key error
			if _, err := a.service.GetUser(ctx, id); err != nil {
				return fmt.Errorf("user %s: %w", id, err)
			}

			_, plaintext, err := a.tokens.CreateToken(ctx, id, name, tokenScopes, expiresAt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&name, "name", "", "token name")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "scopes: read, write or * (default: *)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime, e.g. 720h (default: never expires)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newTokenListCmd(opts *rootOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's API tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			tokens, err := a.tokens.ListUserTokens(ctx, id)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPREFIX\tNAME\tSCOPES\tSTATUS")
			now := time.Now().UTC()
			for _, t := range tokens {
				status := "active"
				if !t.IsUsable(now) {
					status = "inactive"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.TokenPrefix, t.Name, auth.JoinScopes(t.Scopes), status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.MarkFlagRequired("user")
	return cmd
}
