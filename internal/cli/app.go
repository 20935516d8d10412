package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/roach88/habitsync/internal/config"
	"github.com/roach88/habitsync/internal/engine"
	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/remote"
	"github.com/roach88/habitsync/internal/store"
	"github.com/roach88/habitsync/internal/syncer"
)

// errNoRemote is returned by commands that need a remote when neither
// remote_url nor redis_url is configured.
var errNoRemote = errors.New("no remote configured (set remote_url or redis_url)")

// app wires one user's store, engine and syncer for a command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
	syncer *syncer.Syncer

	// remote is nil when no remote is configured or it could not be
	// reached at startup; remoteErr says which.
	remote    remote.Client
	remoteErr error

	closers []func() error
}

func newLogger(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(CodeConfig, "failed to load config", err)
	}
	if opts.User != "" {
		cfg.User = opts.User
	}
	return cfg, nil
}

// openApp loads the config and opens the user's local data. extra options
// are applied to the syncer after the configured ones.
func openApp(cmd *cobra.Command, opts *RootOptions, extra ...syncer.Option) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, opts)
	a := &app{cfg: cfg, logger: logger}

	a.store = openStore(cfg, logger)
	a.closers = append(a.closers, a.store.Close)

	a.remote, a.remoteErr = a.dialRemote(commandContext(cmd))
	if a.remoteErr != nil && !errors.Is(a.remoteErr, errNoRemote) {
		logger.Warn("remote unavailable, working offline", "error", a.remoteErr)
	}

	syncOpts := []syncer.Option{
		syncer.WithMaxRetries(cfg.MaxRetries),
		syncer.WithRetryDelay(cfg.RetryDelay),
		syncer.WithSyncInterval(cfg.SyncInterval),
		syncer.WithLogger(logger),
		syncer.WithOnline(a.remote != nil),
		// The engine is built after the syncer it queues into.
		syncer.WithSnapshotApplier(syncer.SnapshotApplierFunc(
			func(ctx context.Context, merge func(model.Snapshot) model.Snapshot) (model.Snapshot, error) {
				return a.engine.ApplyRemote(ctx, merge)
			})),
	}
	a.syncer = syncer.New(a.store, a.remote, append(syncOpts, extra...)...)
	a.engine = engine.New(a.store, a.syncer,
		engine.WithScoreBounds(cfg.MinScore, cfg.MaxScore),
		engine.WithLogger(logger),
	)
	return a, nil
}

func openStore(cfg config.Config, logger *slog.Logger) *store.Store {
	opts := []store.Option{
		store.WithJournalKeep(cfg.JournalKeep),
		store.WithLogger(logger),
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.OpenWithFallback(func() (store.Backend, error) {
			b, err := store.OpenSQLite(cfg.Database, cfg.QuotaBytes)
			if err != nil {
				return nil, err
			}
			return b, nil
		}, cfg.User, opts...)
	case config.BackendBadger:
		return store.OpenWithFallback(func() (store.Backend, error) {
			b, err := store.OpenBadger(store.BadgerConfig{
				Path:       cfg.Database,
				SyncWrites: true,
				QuotaBytes: cfg.QuotaBytes,
				Logger:     logger,
			})
			if err != nil {
				return nil, err
			}
			return b, nil
		}, cfg.User, opts...)
	default:
		return store.Open(store.NewMemoryBackend(cfg.QuotaBytes), cfg.User, opts...)
	}
}

func (a *app) dialRemote(ctx context.Context) (remote.Client, error) {
	switch {
	case a.cfg.RemoteURL != "":
		var opts []remote.RESTOption
		if a.cfg.RemoteToken != "" {
			opts = append(opts, remote.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: a.cfg.RemoteToken,
				TokenType:   "Bearer",
			})))
		}
		return remote.NewRESTClient(a.cfg.RemoteURL, a.cfg.User, opts...), nil
	case a.cfg.RedisURL != "":
		client, err := remote.DialRedis(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return remote.NewRedisStore(client, a.cfg.User), nil
	}
	return nil, errNoRemote
}

// requireRemote returns an ExitError explaining why there is no remote.
func (a *app) requireRemote() error {
	if a.remote != nil {
		return nil
	}
	if errors.Is(a.remoteErr, errNoRemote) {
		return WrapExitError(CodeNoRemote, "cannot sync", a.remoteErr)
	}
	return WrapExitError(CodeRemote, "remote unreachable", a.remoteErr)
}

// flush tries to deliver queued changes. Failures leave the changes
// queued for the next sync.
func (a *app) flush(ctx context.Context) {
	if !a.syncer.Online() {
		return
	}
	result, err := a.syncer.ProcessQueue(ctx)
	if err != nil {
		a.logger.Warn("sync deferred", "error", err)
		return
	}
	a.logger.Debug("queue drained",
		"delivered", result.Delivered,
		"failed", result.Failed,
		"dead_lettered", result.DeadLettered,
	)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// closeApp closes a and logs a failure; used in defers.
func closeApp(a *app) {
	if err := a.Close(); err != nil {
		a.logger.Error("error closing local data", "error", err)
	}
}

// engineError classifies an engine failure. Anything the engine did not
// refuse is a storage failure.
func engineError(message string, err error) error {
	switch {
	case errors.Is(err, engine.ErrUnknownEntity):
		return WrapExitError(CodeUnknownEntity, message, err)
	case model.IsValidationError(err), engine.IsKindError(err):
		return WrapExitError(CodeValidation, message, err)
	default:
		return WrapExitError(CodeStorage, message, err)
	}
}
