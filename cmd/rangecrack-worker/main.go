package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/screa/rangecrack/internal/config"
	logpkg "github.com/screa/rangecrack/internal/logger"
	"github.com/screa/rangecrack/pkg/coordinator"
	"github.com/screa/rangecrack/pkg/transport"
)

var cfg = config.NewConfig()

func main() {
	var rootCmd = &cobra.Command{
		Use:   "rangecrack-worker",
		Short: "Distributed brute-force search worker",
		Long: `Requests numeric ranges from a job server, searches them in parallel for the
zero-padded decimal candidate whose digest matches the target, reports the
outcome and asks for more work until the server has none left.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWorker,
	}

	cfg.RegisterFlags(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Load(v); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logpkg.Open(cfg.LogFile, cfg.Verbose)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closer.Close()
	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	logger.Info().
		Str("server", cfg.Endpoint()).
		Str("transport", cfg.Transport).
		Str("target", cfg.GetTargetDescription()).
		Bool("exclusive-end", cfg.ExclusiveEnd).
		Msg("starting rangecrack worker")
	if cfg.ConfigFile != "" {
		logger.Info().Str("file", cfg.ConfigFile).Msg("loaded config file")
	}

	c, err := coordinator.New(cfg, newDialer(), logger)
	if err != nil {
		return err
	}

	// Stop between job cycles on Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = c.Run(ctx)
	switch {
	case err == nil:
		logger.Info().Int64("jobs", c.Jobs()).Msg("worker finished")
		return nil
	case ctx.Err() != nil:
		logger.Info().Int64("jobs", c.Jobs()).Msg("worker stopped by signal")
		return nil
	default:
		return err
	}
}

func newDialer() transport.Dialer {
	if cfg.Transport == config.TransportNATS {
		return transport.NewNATSDialer(cfg.NATSURL, cfg.NATSSubject, cfg.IOTimeout)
	}
	return transport.NewTCPDialer(cfg.Address(), cfg.IOTimeout)
}
