package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbob/session-sync/internal/chatsync"
	"github.com/arbob/session-sync/internal/mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// withApp runs fn with a wired app and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(cmd, args, a)
	}
}

func newSetupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Connect this device to the encrypted remote",
		Long: `Authenticate, create the private repository if needed and establish the
encryption passphrase. The first device chooses the passphrase; every other
device must enter the same one.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, newStatusView(a))
		}),
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			if err := a.activate(ctx); err != nil {
				return err
			}

			if dryRun {
				actions, err := a.syncer.Plan(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, actions)
			}

			res, err := a.syncer.Sync(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, res)
		}),
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the action for each session without transferring anything")

	return cmd
}

func newRunCmd(_ *rootOptions) *cobra.Command {
	var withMCP bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync continuously on a timer and on file changes",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			if err := a.activate(ctx); err != nil {
				return err
			}

			unsubscribe := a.syncer.Subscribe(func(st chatsync.Status) {
				a.logger.Debug("status changed",
					slog.String("state", string(st.State)),
					slog.Int("item_count", st.ItemCount),
					slog.String("error", st.Error),
				)
			})
			defer unsubscribe()

			a.logger.Info("session-sync starting",
				slog.String("version", Version),
				slog.String("sessions_dir", a.cfg.SessionsDir),
				slog.Duration("interval", a.cfg.Interval),
				slog.Bool("watch", a.cfg.Watch),
				slog.Bool("mcp", withMCP || a.cfg.EnableMCP),
			)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.syncer.Trigger(gctx, "startup")
				return a.syncer.RunPeriodic(gctx, a.cfg.Interval)
			})

			if a.cfg.Watch {
				w := chatsync.NewWatcher(a.source.Root(), a.syncer.Trigger, a.logger.With(slog.String("service", "watcher")))
				g.Go(func() error {
					return w.Watch(gctx)
				})
			}

			if withMCP || a.cfg.EnableMCP {
				g.Go(func() error {
					return serveMCP(gctx, a)
				})
			}

			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}

			a.logger.Info("session-sync stopped")
			return nil
		}),
	}

	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Also serve MCP tools on stdio (same as ENABLE_MCP=true)")

	return cmd
}

func newMCPCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve sync tools to an MCP client on stdio",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			if err := a.activate(ctx); err != nil {
				return err
			}

			if err := serveMCP(ctx, a); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}),
	}
}

func serveMCP(ctx context.Context, a *app) error {
	server := mcp.NewServer(
		&mcp.Implementation{Name: "session-sync", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(server, a.syncer)

	a.logger.Info("serving MCP tools on stdio")

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

func newBackupsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backups <session-id>",
		Short: "List the remote backups of a session",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			if err := a.activate(ctx); err != nil {
				return err
			}

			backups, err := a.syncer.Backups(ctx, args[0])
			if err != nil {
				return err
			}
			if backups == nil {
				backups = []chatsync.Backup{}
			}
			return render(cmd.OutOrStdout(), opts.output, backups)
		}),
	}
}

func newDiffCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <session-id> [backup-path]",
		Short: "Diff a backup against the live remote session",
		Long:  "Diff a backup against the live remote session. Without a backup path the newest backup is used.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			if err := a.activate(ctx); err != nil {
				return err
			}

			var backupPath string
			if len(args) == 2 {
				backupPath = args[1]
			}

			d, err := a.syncer.DiffBackup(ctx, args[0], backupPath)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("output") {
				return render(cmd.OutOrStdout(), opts.output, d)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (+%d -%d)\n%s", d.Backup, d.Added, d.Removed, d.Text)
			return nil
		}),
	}
}

func newRestoreCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <session-id> <backup-path>",
		Short: "Restore a backup over the local session",
		Long: `Write a backup's content over the local copy of a session. The restored copy
counts as the newest activity, so the next sync pushes it and backs up the
version it replaces.`,
		Args: cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			if err := a.activate(ctx); err != nil {
				return err
			}

			if err := a.syncer.RestoreBackup(ctx, args[0], args[1]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", args[0], args[1])
			return nil
		}),
	}
}

// statusView is the status command output.
type statusView struct {
	State       string `json:"state" yaml:"state"`
	LastSync    string `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	DeviceID    string `json:"device_id" yaml:"device_id"`
	Repository  string `json:"repository,omitempty" yaml:"repository,omitempty"`
	SessionsDir string `json:"sessions_dir" yaml:"sessions_dir"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newStatusView(a *app) statusView {
	st := a.syncer.Status()

	v := statusView{
		State:       string(st.State),
		DeviceID:    a.state.DeviceID(),
		SessionsDir: a.cfg.SessionsDir,
		Error:       st.Error,
	}

	if st.LastSync > 0 {
		v.LastSync = time.UnixMilli(st.LastSync).UTC().Format(time.RFC3339)
	}

	if loc, ok, err := a.state.RemoteLocation(); err == nil && ok {
		v.Repository = loc.Owner + "/" + loc.Repo
	}

	return v
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local sync state",
		Long:  "Show local sync state. Nothing is read from the remote.",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			return render(cmd.OutOrStdout(), opts.output, newStatusView(a))
		}),
	}
}

func newResetCmd(_ *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget all local sync state",
		Long: `Forget the device identity, hash cache, last sync time and remote location.
Remote data and local sessions are untouched.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			if !yes {
				return fmt.Errorf("reset discards all local sync state; pass --yes to confirm")
			}

			if err := a.syncer.Reset(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "local sync state cleared, new device id %s\n", a.state.DeviceID())
			return nil
		}),
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")

	return cmd
}
