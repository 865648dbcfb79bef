package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configFile string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dependency-resolver",
		Short: "Resolve project dependencies and container image packages",
		Long: "dependency-resolver walks a project folder, resolves the dependencies of every supported " +
			"package manager and optionally catalogs the packages of the referenced container images.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogger()
			setGlobalLogLevel()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path. Example: ~/.config/dependency-resolver/dependency-resolver.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Set log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newScanCmd())
	return rootCmd
}

func initLogger() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func setGlobalLogLevel() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Warn().Str("logLevelSpecified", logLevel).Msg("Invalid log level, defaulting to info")
		return
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Scan failed")
		stop()
		os.Exit(1)
	}
}
