package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mia/internal/config"
	"mia/internal/permission"
	"mia/internal/statestore"
)

func newPermissionCommand(ctx *commandContext) *cobra.Command {
	permissionCmd := &cobra.Command{
		Use:   "permission",
		Short: "Inspect or change the microphone permission",
	}

	withGrants := func(fn func(context.Context, *permission.Grants) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *statestore.Store) error {
				return fn(cmd.Context(), permission.NewGrants(store))
			})
		}
	}
	report := func(cmd *cobra.Command, grants *permission.Grants) error {
		status, err := grants.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Microphone permission: %s\n", status)
		return nil
	}

	statusCmd := &cobra.Command{Use: "status", Short: "Show the microphone permission"}
	statusCmd.RunE = withGrants(func(_ context.Context, g *permission.Grants) error {
		return report(statusCmd, g)
	})

	grantCmd := &cobra.Command{Use: "grant", Short: "Allow microphone recording"}
	grantCmd.RunE = withGrants(func(c context.Context, g *permission.Grants) error {
		if err := g.Grant(c); err != nil {
			return err
		}
		return report(grantCmd, g)
	})

	denyCmd := &cobra.Command{Use: "deny", Short: "Refuse microphone recording"}
	denyCmd.RunE = withGrants(func(c context.Context, g *permission.Grants) error {
		if err := g.Deny(c); err != nil {
			return err
		}
		return report(denyCmd, g)
	})

	resetCmd := &cobra.Command{Use: "reset", Short: "Forget the recorded answer so the next start asks again"}
	resetCmd.RunE = withGrants(func(c context.Context, g *permission.Grants) error {
		if err := g.Reset(c); err != nil {
			return err
		}
		return report(resetCmd, g)
	})

	permissionCmd.AddCommand(statusCmd, grantCmd, denyCmd, resetCmd)
	return permissionCmd
}
