package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AshkanYarmoradi/go-reservo/api"
	"github.com/AshkanYarmoradi/go-reservo/cli/styles"
)

const shutdownTimeout = 10 * time.Second

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ensureContext(parent), os.Interrupt, syscall.SIGTERM)
}

// NewServeCommand creates the serve command
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP admission gate",
		Long: `Serve accepts {kind, data} requests on POST /command, validates them
against the admission table and handles them in process.

Endpoints:
  POST /command        admit and handle a command
  GET  /state/:key     read materialized state
  GET  /healthz        state backend health
  GET  /metrics        Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := NewRuntime(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := api.New(rt.Handle,
				api.WithStateStore(rt.States),
				api.WithLogger(rt.Logger),
				api.WithRegistry(rt.Registry),
			)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.FormatInfo(fmt.Sprintf("Listening on %s (state: %s, broker: %s)",
				cfg.Server.Addr, cfg.State.Driver, cfg.Broker.Driver)))

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(cfg.Server.Addr) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			fmt.Fprintln(out, styles.FormatSuccess("Server stopped"))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
