package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/schemata/internal/api"
	"github.com/roach88/schemata/internal/config"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/observability"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port   int
	Memory bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the schema API, the websocket event stream and Prometheus metrics.

On startup every interrupted schema delete is purged. On SIGINT or SIGTERM
the server stops accepting requests, queued events are delivered, and the
stores are closed.

Example:
  schemata serve
  SCHEMATA_PORT=9000 schemata serve --memory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "HTTP port (default $SCHEMATA_PORT)")
	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "use in-memory stores instead of SQLite")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, func(cfg *config.Config) {
		if cmd.Flags().Changed("port") {
			cfg.Port = opts.Port
		}
	})
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	configureLogging(cmd.ErrOrStderr(), level, cfg.LogFormat, opts.Verbose)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			slog.Error("tracing shutdown failed", "error", err)
		}
	}()

	hub := notify.NewHub(cfg.AllowedOrigins...)
	defer hub.Close()

	rt, err := openRuntime(ctx, cfg, runtimeOptions{
		memory: opts.Memory,
		sink:   notify.MultiSink{notify.LogSink{}, hub},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	if n, err := rt.orch.PurgePending(ctx); err != nil {
		slog.Warn("startup purge incomplete", "purged", n, "error", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           api.New(rt.orch, hub, api.WithCORS(cfg.ClientURL)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	slog.Info("server listening", "addr", ln.Addr().String(), "memory", opts.Memory)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "graceful shutdown failed", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
