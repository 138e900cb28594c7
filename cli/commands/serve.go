package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-dugout/api"
	"github.com/AshkanYarmoradi/go-dugout/cli/styles"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scorebook over HTTP",
		Long: `Serve the scorebook HTTP API.

Writes go through the same command bus as the CLI. Clients may send an
Idempotency-Key header to retry a request safely. /metrics is mounted
when metrics.enabled is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(ensureContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withRuntime(cmd, flags, func(ctx context.Context, rt *Runtime) error {
				if addr == "" {
					addr = rt.Config.HTTP.Addr
				}
				return serve(ctx, rt, addr, func(a string) {
					fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess("Listening on "+a))
				})
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: http.addr)")
	return cmd
}

// serve runs the API until ctx is done, then shuts the server down.
func serve(ctx context.Context, rt *Runtime, addr string, started func(addr string)) error {
	opts := []api.RouterOption{api.WithAllowedOrigins(rt.Config.HTTP.AllowedOrigins...)}
	if rt.Registry != nil {
		opts = append(opts, api.WithMetricsHandler(promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{})))
	}
	router := api.NewRouter(api.NewHandler(rt.Bus, rt.Service, rt.Logger), opts...)
	srv := api.NewServer(addr, router)

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info("HTTP server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	if started != nil {
		started(addr)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	rt.Logger.Info("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
