package cli

import (
	"fmt"

	"Lee_Timeline/internal/app"

	"github.com/spf13/cobra"
)

// NewDeleteUserCommand 停用账号并删除其全部状态
func NewDeleteUserCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <login>",
		Short: "Deactivate a user and remove all of their statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			login := args[0]
			ctx := cmd.Context()
			return opts.withApp(ctx, func(a *app.App) error {
				if err := a.Sessions.Deactivate(ctx, login); err != nil {
					return fmt.Errorf("deactivate %s: %w", login, err)
				}
				report, err := a.Updates.RemoveStatusesForDeletedUser(ctx, login)
				if err != nil {
					return fmt.Errorf("remove statuses of %s: %w", login, err)
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one pass of the follow counter reconciler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(a *app.App) error {
				fixed, err := a.Reconciler.ReconcileOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"fixed": fixed})
			})
		},
	}
}

func NewPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired blocked statuses and moderation records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(a *app.App) error {
				report, err := a.Purger.PurgeOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

// NewDrainCommand broker 恢复后手动补投 outbox
func NewDrainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain-outbox",
		Short: "Deliver one batch of pending social events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(a *app.App) error {
				sent, err := a.Relayer.DrainOnce(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"sent": sent})
			})
		},
	}
}

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <login>",
		Short: "Issue an access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(a *app.App) error {
				token, err := a.Sessions.IssueToken(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}
}
