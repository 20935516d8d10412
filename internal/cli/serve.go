package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/habitsync/internal/remote"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// Ready is called with the bound address once the server accepts
	// connections.
	Ready func(net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync remote over HTTP",
		Long: `Serve the remote sync API for every user. Data lives in Redis when
redis_url is configured and in memory otherwise. Requests must carry
remote_token as a bearer token when it is set.

Example:
  habitsync serve --listen :8787`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, opts.RootOptions)

	ctx, stop := signalContext(commandContext(cmd))
	defer stop()

	var dir remote.Directory = remote.NewMemoryDirectory()
	if cfg.RedisURL != "" {
		client, err := remote.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return WrapExitError(CodeRemote, "failed to connect to redis", err)
		}
		defer client.Close()
		dir = remote.RedisDirectory(client)
	}

	addr := cfg.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(CodeConfig, "failed to listen", err)
	}

	srv := &http.Server{
		Handler: remote.NewHandler(dir,
			remote.WithBearerToken(cfg.RemoteToken),
			remote.WithHandlerLogger(logger),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.Info("serving sync remote", "addr", ln.Addr().String())
	fmt.Fprintf(cmd.ErrOrStderr(), "Serving on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.Ready != nil {
		opts.Ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(CodeServe, "server stopped", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(CodeServe, "shutdown failed", err)
	}
	return nil
}
