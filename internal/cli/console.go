package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/amaos/internal/console"
	"github.com/spf13/cobra"
)

func newConsoleCmd() *cobra.Command {
	var (
		askResources bool
		bootDelay    time.Duration
		httpAddr     string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Boot the interactive operator console",
		Long: "Shows the boot screen, optionally asks for the machine resources, then serves the\n" +
			"User/Kernel menu while the scheduler rotates threads in the background.\n" +
			"All tasks are shut down on exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !cmd.Flags().Changed("http") {
				httpAddr = cfg.Server.Addr
			}

			sys, err := newSystem(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer sys.Close()

			loopDone := make(chan struct{})
			go func() {
				defer close(loopDone)
				if err := sys.loop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("scheduler stopped", "error", err)
				}
			}()
			defer func() {
				sys.loop.Stop()
				<-loopDone
			}()

			if httpAddr != "" {
				api, err := startHTTP(sys.server(), httpAddr)
				if err != nil {
					return err
				}
				defer api.shutdown()
			}

			con := console.New(sys.kernel, cmd.InOrStdin(), cmd.OutOrStdout(), console.Options{
				BootDelay:    bootDelay,
				AskResources: askResources,
			}, logger)
			if err := con.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&askResources, "ask-resources", false, "Prompt for RAM, storage and cores before the menu")
	cmd.Flags().DurationVar(&bootDelay, "boot-delay", time.Second, "Pause between boot screen lines")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Also serve the HTTP API on this address")

	return cmd
}
