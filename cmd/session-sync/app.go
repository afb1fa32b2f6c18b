package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/arbob/session-sync/internal/chatsync"
	"github.com/arbob/session-sync/internal/config"
	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/arbob/session-sync/internal/logging"
	"github.com/arbob/session-sync/internal/remote"
	"github.com/arbob/session-sync/internal/state"
	"github.com/spf13/cobra"
)

// setupAttempts bounds interactive passphrase retries.
const setupAttempts = 3

// app wires configuration, state and the orchestrator for one command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *remote.GitHubStore
	source *chatsync.FileSource
	state  *chatsync.SyncState
	syncer *chatsync.Syncer
	prompt *prompter

	closers []io.Closer
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, logCloser := logging.NewLoggerTo(cfg.Environment, cmd.ErrOrStderr(), cfg.LogFile)
	a := &app{
		cfg:     cfg,
		logger:  logger,
		prompt:  newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr()),
		closers: []io.Closer{logCloser},
	}

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) wire() error {
	db, err := state.Open(a.cfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	a.closers = append(a.closers, db)

	a.state, err = chatsync.NewSyncState(db)
	if err != nil {
		return err
	}

	owner, repo, err := a.cfg.RepoOwnerAndName("")
	if err != nil {
		return err
	}

	// A previous setup already resolved the owner.
	if loc, ok, err := a.state.RemoteLocation(); err == nil && ok && owner == "" && loc.Repo == repo {
		owner = loc.Owner
	}

	a.store, err = remote.NewGitHubStore(remote.Config{
		BaseURL: a.cfg.GitHubAPIURL,
		Token:   a.cfg.GitHubToken,
		Owner:   owner,
		Repo:    repo,
	}, a.logger.With(slog.String("service", "remote")))
	if err != nil {
		return err
	}

	a.source, err = chatsync.NewFileSource(a.cfg.SessionsDir, a.logger)
	if err != nil {
		return err
	}

	a.syncer, err = chatsync.NewSyncer(a.store, a.source, a.state, a.logger, chatsync.Options{
		MaxItemBytes:      a.cfg.MaxItemBytes,
		ExcludeWorkspaces: a.cfg.ExcludeWorkspaces,
		RecentDays:        a.cfg.RecentDays,
		HashWorkers:       a.cfg.HashWorkers,
	})

	return err
}

// Close releases the state database and the log file.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// activate establishes the passphrase for this process. The passphrase is
// never persisted, so every command that touches remote data runs setup
// with SYNC_PASSPHRASE or, on a terminal, an interactive prompt.
func (a *app) activate(ctx context.Context) error {
	passphrase := a.cfg.Passphrase

	if passphrase == "" {
		if !a.prompt.tty {
			return fmt.Errorf("%w: set SYNC_PASSPHRASE or run from a terminal", syncerrors.ErrSetupRequired)
		}

		if _, err := a.store.Authenticate(ctx); err != nil {
			return err
		}

		token, err := a.syncer.Remote().VerificationToken(ctx)
		if err != nil {
			if errors.Is(err, syncerrors.ErrNotFound) {
				return fmt.Errorf("%w: run session-sync setup first", syncerrors.ErrSetupRequired)
			}
			return err
		}

		passphrase, err = chatsync.VerifyWithRetries(a.prompt.existing(), token, setupAttempts)
		if err != nil {
			return err
		}
	}

	return a.syncer.Setup(ctx, passphrase)
}

// setup runs first-time or additional-device setup. A new remote asks
// for the passphrase twice; an existing one checks it against the
// verification token, re-prompting on a mismatch.
func (a *app) setup(ctx context.Context) error {
	if _, err := a.store.Authenticate(ctx); err != nil {
		return err
	}

	token, err := a.syncer.Remote().VerificationToken(ctx)
	fresh := errors.Is(err, syncerrors.ErrNotFound)
	if err != nil && !fresh {
		return fmt.Errorf("reading verification token: %w", err)
	}

	passphrase := a.cfg.Passphrase

	switch {
	case passphrase != "":
	case fresh:
		passphrase, err = a.prompt.newPassphrase()
	default:
		passphrase, err = chatsync.VerifyWithRetries(a.prompt.existing(), token, setupAttempts)
	}
	if err != nil {
		return err
	}

	if err := a.syncer.Setup(ctx, passphrase); err != nil {
		return err
	}

	owner, repo := a.store.Location()
	a.logger.Info("setup complete",
		slog.String("repository", owner+"/"+repo),
		slog.Bool("new_remote", fresh),
		slog.String("device_id", a.state.DeviceID()),
	)

	return nil
}
