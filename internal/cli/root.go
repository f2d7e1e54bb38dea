// Package cli implements the amaos command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/me/amaos/internal/config"
	"github.com/me/amaos/internal/logging"
	"github.com/me/amaos/internal/server"
	"github.com/me/amaos/internal/tracing"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string
	flagTrace     string

	cfg    config.Config
	logger *slog.Logger
	client *Client

	stopTracing = func() {}
)

// NewRootCmd creates the root cobra command for the amaos CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "amaos",
		Short: "AMA OS, a simulated single-node task scheduler",
		Long: "amaos models a fixed pool of RAM, storage and cores, admits process and thread\n" +
			"tasks into a bounded ready queue and rotates threads round-robin.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				loaded.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				loaded.Log.Format = flagLogFormat
			}
			if flagDebug {
				loaded.Log.Level = "debug"
			}
			l, err := logging.NewWithWriter(cmd.ErrOrStderr(), loaded.Log.Level, loaded.Log.Format)
			if err != nil {
				return err
			}
			cfg, logger = loaded, l
			client = NewClient(flagServer, logger)
			return startTracing()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			stopTracing()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "amaos server URL for remote commands (or AMAOS_SERVER env)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagTrace, "trace", "", "Write OpenTelemetry spans as JSON to this file")

	root.AddCommand(
		newConsoleCmd(),
		newServeCmd(),
		newEventsCmd(),
		newPsCmd(),
		newLaunchCmd(),
		newKillCmd(),
		newResourcesCmd(),
	)

	return root
}

// startTracing installs the span exporter when --trace is set.
func startTracing() error {
	stopTracing = func() {}
	if flagTrace == "" {
		return nil
	}
	f, err := os.Create(flagTrace)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	tp, err := tracing.Init("amaos", server.Version, f)
	if err != nil {
		f.Close()
		return err
	}
	stopTracing = func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("trace shutdown", "error", err)
		}
		f.Close()
	}
	return nil
}
