package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/habitsync/internal/model"
	"github.com/roach88/habitsync/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Watch       bool
	MetricsAddr string
}

// SyncReport summarizes one full sync.
type SyncReport struct {
	Delivered      int       `json:"delivered"`
	Failed         int       `json:"failed"`
	DeadLettered   int       `json:"deadLettered"`
	JournalEntries int       `json:"journalEntries"`
	At             time.Time `json:"at"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync local data with the remote",
		Long: `Deliver queued changes, fetch the remote snapshot and merge it into
local data.

With --watch the command keeps running: queued changes are delivered as
they appear, a full sync runs every sync_interval, and Prometheus metrics
are served on --metrics when set. Stop it with Ctrl-C.

Example:
  habitsync sync
  habitsync sync --watch --metrics :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Watch {
				return runSyncWatch(opts, cmd)
			}
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep syncing until interrupted")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics", "", "serve Prometheus metrics on this address (with --watch)")
	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.requireRemote(); err != nil {
		return err
	}
	result, err := a.syncer.FullSync(commandContext(cmd))
	if err != nil {
		return WrapExitError(CodeRemote, "sync failed", err)
	}

	report := SyncReport{
		Delivered:      result.Drain.Delivered,
		Failed:         result.Drain.Failed,
		DeadLettered:   result.Drain.DeadLettered,
		JournalEntries: result.JournalEntries,
		At:             result.At,
	}
	return newFormatter(cmd, opts.RootOptions).Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "Synced at %s: %d delivered, %d failed, %d dead-lettered, %d journal entries\n",
			report.At.UTC().Format(time.RFC3339), report.Delivered, report.Failed, report.DeadLettered, report.JournalEntries)
	})
}

func runSyncWatch(opts *SyncOptions, cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := openApp(cmd, opts.RootOptions, syncer.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.requireRemote(); err != nil {
		return err
	}

	ctx, stop := signalContext(commandContext(cmd))
	defer stop()

	if opts.MetricsAddr != "" {
		shutdown, err := serveMetrics(opts.MetricsAddr, reg, a)
		if err != nil {
			return WrapExitError(CodeConfig, "failed to serve metrics", err)
		}
		defer shutdown()
	}

	if _, err := a.syncer.FullSync(ctx); err != nil {
		a.logger.Warn("initial sync failed", "error", err)
	}
	a.syncer.StartPeriodicSync(ctx, a.cfg.SyncInterval)
	defer a.syncer.StopPeriodicSync()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (full sync every %s). Press Ctrl-C to stop.\n", a.cfg.User, a.cfg.SyncInterval)
	if err := a.syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(CodeRemote, "sync loop stopped", err)
	}
	return nil
}

// serveMetrics exposes reg on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry, a *app) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// QueueReport lists pending and dead-lettered changes.
type QueueReport struct {
	Pending     []model.SyncChange  `json:"pending"`
	DeadLetters []syncer.DeadLetter `json:"deadLetters"`
}

// NewQueueCommand creates the queue command and its requeue subcommand.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show pending and dead-lettered changes",
		Long: `Show the changes waiting to be delivered to the remote and those
that exhausted their retries.

Example:
  habitsync queue
  habitsync queue requeue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(rootOpts, cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "requeue",
		Short:         "Move dead letters back to the queue",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequeue(rootOpts, cmd)
		},
	})
	return cmd
}

func runQueue(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx := commandContext(cmd)
	pending, err := a.syncer.Pending(ctx)
	if err != nil {
		return WrapExitError(CodeStorage, "failed to read sync queue", err)
	}
	dead, err := a.syncer.DeadLetters(ctx)
	if err != nil {
		return WrapExitError(CodeStorage, "failed to read dead letters", err)
	}

	report := QueueReport{Pending: pending, DeadLetters: dead}
	return newFormatter(cmd, opts).Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "Pending: %d\n", len(pending))
		for _, c := range pending {
			fmt.Fprintf(w, "  %s  %-22s attempts=%d", c.ID, c.Kind, c.AttemptCount)
			if c.LastError != "" {
				fmt.Fprintf(w, "  last error: %s", c.LastError)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Dead letters: %d\n", len(dead))
		for _, d := range dead {
			fmt.Fprintf(w, "  %s  %-22s %s\n", d.Change.ID, d.Change.Kind, d.Reason)
		}
	})
}

func runRequeue(opts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx := commandContext(cmd)
	n, err := a.syncer.Requeue(ctx)
	if err != nil {
		return WrapExitError(CodeStorage, "failed to requeue dead letters", err)
	}
	a.flush(ctx)

	return newFormatter(cmd, opts).Emit(map[string]int{"requeued": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Requeued %d change(s)\n", n)
	})
}
