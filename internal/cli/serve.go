package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/api"
	"github.com/roach88/finishline/internal/engine"
	"github.com/roach88/finishline/internal/events"
	"github.com/roach88/finishline/internal/ingest"
	"github.com/roach88/finishline/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Timer  string // timer device or capture file to ingest while serving

	// ready, when set, receives the bound address once the listener is up.
	ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the finish-line HTTP API.

The server opens the SQLite database (creating it if it doesn't exist),
serves the JSON API under /api, change streams as server-sent events, and
Prometheus metrics at /metrics. With --timer, results read from a Time
Machine device are submitted to the active context while serving.

Example:
  finishline serve --db ./race.db --listen :8080
  finishline serve --config finishline.yaml --timer /dev/ttyUSB0 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Timer, "timer", "", "timer device or capture file to ingest")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	bus := events.NewBus(a.logger)
	defer func() {
		if err := bus.Close(); err != nil {
			a.logger.Error("error closing event bus", "error", err)
		}
	}()

	engineOpts := []engine.Option{engine.WithNotifier(bus)}
	apiOpts := []api.Option{
		api.WithSubscriber(bus),
		api.WithWorkbook(a.cfg.Export.Workbook),
		api.WithLogger(a.logger),
	}
	if a.cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		engineOpts = append(engineOpts, engine.WithMetrics(metrics.New(reg)))
		apiOpts = append(apiOpts, api.WithMetricsHandler(metrics.Handler(reg)))
	}
	if err := a.startEngine(engineOpts...); err != nil {
		return err
	}

	listen := a.cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := &http.Server{
		Handler:           api.New(a.engine, apiOpts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	if opts.Timer != "" {
		go runTimer(ctx, a, opts.Timer)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	a.logger.Info("server started", "addr", ln.Addr().String(), "db", a.cfg.Database, "output_dir", a.cfg.OutputDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.ready != nil {
		opts.ready <- ln.Addr().String()
	}

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("shutdown incomplete", "error", err)
	}

	a.logger.Info("server stopped gracefully")
	return nil
}

// runTimer ingests a timer device into the active context until ctx is
// done or the device closes.
func runTimer(ctx context.Context, a *app, path string) {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Error("failed to open timer", "path", path, "error", err)
		return
	}
	defer f.Close()

	// Closing the device unblocks the pending read on shutdown.
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	stats, err := ingest.New(a.engine, ingest.ActiveContext(a.engine), a.logger).Run(ctx, f)
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		a.logger.Error("timer ingest stopped", "path", path, "error", err)
	}
	a.logger.Info("timer ingest finished", "path", path, "submitted", stats.Submitted, "rejected", stats.Rejected)
}
