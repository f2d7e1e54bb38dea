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

	"github.com/me/amaos/internal/server"
	"github.com/spf13/cobra"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler behind the HTTP operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !cmd.Flags().Changed("addr") && cfg.Server.Addr != "" {
				addr = cfg.Server.Addr
			}

			sys, err := newSystem(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer sys.Close()

			srv := sys.server()
			api, err := startHTTP(srv, addr)
			if err != nil {
				return err
			}
			srv.StartScheduler(ctx)

			var serveErr error
			select {
			case <-ctx.Done():
			case err := <-api.errCh:
				serveErr = err
			}
			logger.Info("shutting down")

			// Stop scheduler before HTTP server.
			if err := sys.loop.Stop(); err != nil {
				logger.Error("scheduler stop error", "error", err)
			}
			api.shutdown()

			released := sys.kernel.ShutdownAll(context.WithoutCancel(ctx))
			logger.Info("server stopped", "released", len(released))
			return serveErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "Listen address")

	return cmd
}

// httpAPI is a running operator API listener.
type httpAPI struct {
	srv   *http.Server
	errCh chan error
}

// startHTTP binds addr synchronously so address errors surface before the
// console or scheduler starts.
func startHTTP(s *server.Server, addr string) (*httpAPI, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	api := &httpAPI{
		srv: &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		errCh: make(chan error, 1),
	}
	go func() {
		logger.Info("server starting", "addr", ln.Addr().String())
		if err := api.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			api.errCh <- err
		}
	}()
	return api, nil
}

func (a *httpAPI) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}
